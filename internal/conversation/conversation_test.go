package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/weatherbot/internal/session"
	"github.com/m3rciful/weatherbot/internal/weather"
)

type fakeProvider struct {
	mu        sync.Mutex
	known     map[string]bool
	validErr  error
	lookupErr error
	calls     int
}

func (f *fakeProvider) CityExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.validErr != nil {
		return false, f.validErr
	}
	return f.known[name], nil
}

func (f *fakeProvider) Current(_ context.Context, name string) (weather.Current, error) {
	if f.lookupErr != nil {
		return weather.Current{}, f.lookupErr
	}
	return weather.Current{
		City: name, Country: "GB", Description: "light rain",
		Temperature: 12.5, FeelsLike: 11, Humidity: 80, Pressure: 1010, WindSpeed: 3.2, Units: "metric",
	}, nil
}

type failingStore struct {
	session.Store
	saveErr error
	getErr  error
}

func (f failingStore) Get(ctx context.Context, id int64) (session.UserSession, bool, error) {
	if f.getErr != nil {
		return session.UserSession{}, false, f.getErr
	}
	return f.Store.Get(ctx, id)
}

func (f failingStore) Save(ctx context.Context, s session.UserSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, s)
}

type legacyStore struct {
	session.Store
	legacy session.UserSession
	saves  int
}

func (l *legacyStore) Get(context.Context, int64) (session.UserSession, bool, error) {
	return l.legacy, true, nil
}

func (l *legacyStore) Save(context.Context, session.UserSession) error {
	l.saves++
	return nil
}

func newTestDispatcher(t *testing.T, p *fakeProvider, store session.Store) *Dispatcher {
	t.Helper()
	reg, err := NewRegistry(StateHandlers(p, p), DefaultCommands()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	d := NewDispatcher(reg, store)
	d.now = func() time.Time { return time.Unix(1700000000, 0) }
	return d
}

func request(userID int64, st session.State, text string) *UserRequest {
	return &UserRequest{
		Update:  Update{UserID: userID, ChatID: userID, Text: text},
		ChatID:  userID,
		Session: session.UserSession{TelegramUserID: userID, State: st},
	}
}

func londonProvider() *fakeProvider {
	return &fakeProvider{known: map[string]bool{"London": true}}
}

type stubHandler struct{ st session.State }

func (h stubHandler) State() session.State { return h.st }
func (h stubHandler) Handle(context.Context, *UserRequest) (Outcome, error) {
	return Outcome{Next: h.st}, nil
}

func TestRegistryRequiresEveryStateOnce(t *testing.T) {
	_, err := NewRegistry([]StateHandler{
		stubHandler{session.StateConversationStarted},
		stubHandler{session.StateAwaitingCity},
	})
	if !errors.Is(err, ErrMissingHandler) {
		t.Fatalf("expected ErrMissingHandler, got %v", err)
	}

	_, err = NewRegistry([]StateHandler{
		stubHandler{session.StateConversationStarted},
		stubHandler{session.StateAwaitingCity},
		stubHandler{session.StateCityConfirmed},
		stubHandler{session.StateAwaitingCity},
	})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}

	reg, err := NewRegistry(StateHandlers(londonProvider(), londonProvider()))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, st := range session.States() {
		h, ok := reg.Handler(st)
		if !ok || h.State() != st {
			t.Fatalf("state %s: handler=%v ok=%v", st, h, ok)
		}
	}
}

func TestDispatchEveryKnownStateIsHandled(t *testing.T) {
	for _, st := range session.States() {
		store := session.NewMemoryStore()
		d := newTestDispatcher(t, londonProvider(), store)
		_, handled, err := d.Dispatch(context.Background(), request(1, st, "London"))
		if err != nil || !handled {
			t.Fatalf("state %s: handled=%v err=%v", st, handled, err)
		}
		if store.Len() != 1 {
			t.Fatalf("state %s: session not saved", st)
		}
	}
}

func TestDispatchUnknownStateDoesNothing(t *testing.T) {
	store := session.NewMemoryStore()
	d := newTestDispatcher(t, londonProvider(), store)
	req := request(1, session.State("lost"), "London")
	before := req.Session

	reply, handled, err := d.Dispatch(context.Background(), req)
	if err != nil || handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if reply.Text != "" || req.Session != before || store.Len() != 0 {
		t.Fatalf("unexpected mutation: reply=%q session=%+v stored=%d", reply.Text, req.Session, store.Len())
	}
}

func TestAwaitingCityUnknownCityRetries(t *testing.T) {
	d := newTestDispatcher(t, londonProvider(), session.NewMemoryStore())
	req := request(1, session.StateAwaitingCity, "Atlantis")

	for i := 0; i < 2; i++ {
		reply, _, err := d.Dispatch(context.Background(), req)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if !strings.Contains(reply.Text, "Atlantis") || !strings.Contains(reply.Text, "try again") {
			t.Fatalf("reply = %q", reply.Text)
		}
		if req.Session.State != session.StateAwaitingCity || req.Session.LastCity != "" {
			t.Fatalf("session = %+v", req.Session)
		}
	}
}

func TestAwaitingCityKnownCityDeliversWeather(t *testing.T) {
	store := session.NewMemoryStore()
	d := newTestDispatcher(t, londonProvider(), store)
	req := request(1, session.StateAwaitingCity, "  London ")

	reply, _, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !reply.Markdown || reply.Weather == nil || !strings.Contains(reply.Text, "London") || !strings.Contains(reply.Text, "12\\.5°C") {
		t.Fatalf("reply = %+v", reply)
	}
	if req.Session.LastCity != "London" || req.Session.State != session.StateCityConfirmed {
		t.Fatalf("session = %+v", req.Session)
	}
	stored, ok, _ := store.Get(context.Background(), 1)
	if !ok || stored.LastCity != "London" || !stored.UpdatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestCityConfirmedLoopsOnNextQuery(t *testing.T) {
	p := &fakeProvider{known: map[string]bool{"London": true, "Paris": true}}
	d := newTestDispatcher(t, p, session.NewMemoryStore())
	req := request(1, session.StateCityConfirmed, "Paris")
	req.Session.LastCity = "London"

	if _, _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if req.Session.State != session.StateCityConfirmed || req.Session.LastCity != "Paris" {
		t.Fatalf("session = %+v", req.Session)
	}

	req.Update.Text = "Atlantis"
	if _, _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if req.Session.State != session.StateAwaitingCity || req.Session.LastCity != "Paris" {
		t.Fatalf("session = %+v", req.Session)
	}
}

func TestProviderFailureKeepsState(t *testing.T) {
	outage := &weather.LookupError{Op: "current", StatusCode: 503, Err: errors.New("down")}
	cases := []struct {
		name string
		p    *fakeProvider
	}{
		{"validator", &fakeProvider{validErr: outage}},
		{"lookup", &fakeProvider{known: map[string]bool{"London": true}, lookupErr: outage}},
	}
	for _, tc := range cases {
		for _, st := range []session.State{session.StateAwaitingCity, session.StateCityConfirmed} {
			d := newTestDispatcher(t, tc.p, session.NewMemoryStore())
			req := request(1, st, "London")
			req.Session.LastCity = "Oslo"

			reply, handled, err := d.Dispatch(context.Background(), req)
			if err != nil || !handled {
				t.Fatalf("%s/%s: handled=%v err=%v", tc.name, st, handled, err)
			}
			if reply.Text != msgUnavailable {
				t.Fatalf("%s/%s: reply = %q", tc.name, st, reply.Text)
			}
			if req.Session.State != st || req.Session.LastCity != "Oslo" {
				t.Fatalf("%s/%s: session = %+v", tc.name, st, req.Session)
			}
		}
	}
}

func TestLookupNotFoundIsValidationFailure(t *testing.T) {
	p := &fakeProvider{known: map[string]bool{"Gotham": true}, lookupErr: weather.ErrCityNotFound}
	d := newTestDispatcher(t, p, session.NewMemoryStore())
	req := request(1, session.StateAwaitingCity, "Gotham")

	reply, _, err := d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if reply.Text != msgCityUnknown("Gotham") || req.Session.State != session.StateAwaitingCity {
		t.Fatalf("reply=%q session=%+v", reply.Text, req.Session)
	}
}

func TestEmptyCityPromptsAgain(t *testing.T) {
	p := londonProvider()
	d := newTestDispatcher(t, p, session.NewMemoryStore())
	req := request(1, session.StateAwaitingCity, "   ")
	reply, _, err := d.Dispatch(context.Background(), req)
	if err != nil || reply.Text != msgEmptyCity || req.Session.State != session.StateAwaitingCity {
		t.Fatalf("reply=%q session=%+v err=%v", reply.Text, req.Session, err)
	}
	if p.calls != 0 {
		t.Fatalf("validator called %d times for blank input", p.calls)
	}
}

func TestStartResetsFromAnyState(t *testing.T) {
	for _, st := range session.States() {
		for _, text := range []string{"/start", "/START@weather_bot", "/start again"} {
			d := newTestDispatcher(t, londonProvider(), session.NewMemoryStore())
			req := request(1, st, text)
			req.Session.LastCity = "London"

			reply, handled, err := d.Dispatch(context.Background(), req)
			if err != nil || !handled {
				t.Fatalf("%s %q: handled=%v err=%v", st, text, handled, err)
			}
			if reply.Text != msgGreeting {
				t.Fatalf("%s %q: reply = %q", st, text, reply.Text)
			}
			if req.Session.State != session.StateConversationStarted || req.Session.LastCity != "" {
				t.Fatalf("%s %q: session = %+v", st, text, req.Session)
			}
		}
	}
}

func TestHelpKeepsState(t *testing.T) {
	d := newTestDispatcher(t, londonProvider(), session.NewMemoryStore())
	req := request(1, session.StateCityConfirmed, "/help")
	req.Session.LastCity = "London"
	reply, _, err := d.Dispatch(context.Background(), req)
	if err != nil || reply.Text != msgHelp {
		t.Fatalf("reply=%q err=%v", reply.Text, err)
	}
	if req.Session.State != session.StateCityConfirmed || req.Session.LastCity != "London" {
		t.Fatalf("session = %+v", req.Session)
	}
}

func TestSaveFailureIsSessionStoreError(t *testing.T) {
	store := failingStore{Store: session.NewMemoryStore(), saveErr: errors.New("disk full")}
	d := newTestDispatcher(t, londonProvider(), store)
	req := request(1, session.StateAwaitingCity, "London")

	reply, handled, err := d.Dispatch(context.Background(), req)
	if !handled || !errors.Is(err, ErrSessionStore) {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if reply.Text != "" || req.Session.State != session.StateAwaitingCity || req.Session.LastCity != "" {
		t.Fatalf("reply=%q session=%+v", reply.Text, req.Session)
	}
}

func newTestService(t *testing.T, p *fakeProvider, store session.Store) *Service {
	t.Helper()
	return NewService(store, session.NewLocker(), newTestDispatcher(t, p, store))
}

func TestServiceNewUserScenario(t *testing.T) {
	store := session.NewMemoryStore()
	svc := newTestService(t, londonProvider(), store)
	ctx := context.Background()

	reply, err := svc.Handle(ctx, Update{UserID: 10, ChatID: 100, Text: "hello"})
	if err != nil || reply.Text != msgAskCity {
		t.Fatalf("hello: reply=%q err=%v", reply.Text, err)
	}
	s, ok, _ := store.Get(ctx, 10)
	if !ok || s.State != session.StateAwaitingCity {
		t.Fatalf("after hello: %+v ok=%v", s, ok)
	}

	reply, err = svc.Handle(ctx, Update{UserID: 10, ChatID: 100, Text: "London"})
	if err != nil || reply.Weather == nil || !strings.Contains(reply.Text, "London") {
		t.Fatalf("London: reply=%+v err=%v", reply, err)
	}
	s, _, _ = store.Get(ctx, 10)
	if s.LastCity != "London" || s.State != session.StateCityConfirmed {
		t.Fatalf("after London: %+v", s)
	}
}

func TestServiceLoadFailure(t *testing.T) {
	store := failingStore{Store: session.NewMemoryStore(), getErr: errors.New("conn refused")}
	svc := newTestService(t, londonProvider(), store)
	if _, err := svc.Handle(context.Background(), Update{UserID: 1, Text: "hi"}); !errors.Is(err, ErrSessionStore) {
		t.Fatalf("expected ErrSessionStore, got %v", err)
	}
}

func TestServiceUnroutableUpdate(t *testing.T) {
	// A record written by an older build with a state this build no longer knows.
	store := &legacyStore{Store: session.NewMemoryStore(), legacy: session.UserSession{TelegramUserID: 3, State: "legacy"}}
	svc := newTestService(t, londonProvider(), store)

	if _, err := svc.Handle(context.Background(), Update{UserID: 3, Text: "London"}); !errors.Is(err, ErrUnroutableUpdate) {
		t.Fatalf("expected ErrUnroutableUpdate, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("session saved %d times", store.saves)
	}
}

func TestServiceConcurrentUsersDoNotInterfere(t *testing.T) {
	p := &fakeProvider{known: map[string]bool{"London": true, "Paris": true}}
	store := session.NewMemoryStore()
	svc := newTestService(t, p, store)
	ctx := context.Background()

	scripts := map[int64][]string{
		1: {"hi", "London"},
		2: {"hi", "Atlantis"},
		3: {"hi", "Paris", "/start"},
		4: {"hi"},
	}
	var wg sync.WaitGroup
	for uid, msgs := range scripts {
		wg.Add(1)
		go func(uid int64, msgs []string) {
			defer wg.Done()
			for _, m := range msgs {
				if _, err := svc.Handle(ctx, Update{UserID: uid, ChatID: uid, Text: m}); err != nil {
					t.Errorf("user %d %q: %v", uid, m, err)
				}
			}
		}(uid, msgs)
	}
	wg.Wait()

	want := map[int64]session.UserSession{
		1: {State: session.StateCityConfirmed, LastCity: "London"},
		2: {State: session.StateAwaitingCity},
		3: {State: session.StateConversationStarted},
		4: {State: session.StateAwaitingCity},
	}
	for uid, w := range want {
		got, ok, _ := store.Get(ctx, uid)
		if !ok || got.State != w.State || got.LastCity != w.LastCity {
			t.Fatalf("user %d: got %+v, want %+v", uid, got, w)
		}
	}
}

func TestServiceSerializesSameUser(t *testing.T) {
	p := &fakeProvider{known: map[string]bool{}}
	store := session.NewMemoryStore()
	svc := newTestService(t, p, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.Handle(ctx, Update{UserID: 9, Text: fmt.Sprintf("msg %d", i)})
		}(i)
	}
	wg.Wait()

	// first message moves to awaiting_city, the other nine are unknown cities
	if p.calls != 9 {
		t.Fatalf("validator calls = %d, want 9", p.calls)
	}
	got, _, _ := store.Get(ctx, 9)
	if got.State != session.StateAwaitingCity {
		t.Fatalf("state = %s", got.State)
	}
}

func TestFormatWeatherEscapesMarkdown(t *testing.T) {
	text := FormatWeather(weather.Current{
		City: "St. John's", Country: "CA", Description: "broken clouds",
		Temperature: -3.5, FeelsLike: -8, Humidity: 70, Pressure: 1002, WindSpeed: 7.1, Units: "imperial",
	})
	for _, want := range []string{"*St\\. John's, CA*", "Broken clouds", "\\-3\\.5°F", "7\\.1 mph", "70%"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}
