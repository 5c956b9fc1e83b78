package middleware

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the parts of tele.Context the middleware touches.
type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]any
	sent  []any
}

func newFakeContext(updateID int, userID int64, text string) *fakeContext {
	user := &tele.User{ID: userID}
	return &fakeContext{
		upd: tele.Update{ID: updateID, Message: &tele.Message{
			Text:   text,
			Sender: user,
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update   { return f.upd }
func (f *fakeContext) Sender() *tele.User    { return f.upd.Message.Sender }
func (f *fakeContext) Chat() *tele.Chat      { return f.upd.Message.Chat }
func (f *fakeContext) Text() string          { return f.upd.Message.Text }
func (f *fakeContext) Get(key string) any    { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Send(what any, _ ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

func TestRecoverMiddlewareReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newFakeContext(1, 1, "hi")); err == nil {
		t.Fatal("expected error from recovered panic")
	}
	ok := RecoverMiddleware(func(tele.Context) error { return nil })
	if err := ok(newFakeContext(2, 1, "hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRateLimitDropsBurstsPerUser(t *testing.T) {
	now := time.Unix(0, 0)
	limited := 0
	calls := map[int64]int{}
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(c tele.Context) error {
		calls[c.Sender().ID]++
		return nil
	})

	_ = h(newFakeContext(1, 10, "a"))
	_ = h(newFakeContext(2, 10, "b"))
	_ = h(newFakeContext(3, 20, "c"))
	now = now.Add(1500 * time.Millisecond)
	_ = h(newFakeContext(4, 10, "d"))

	if calls[10] != 2 || calls[20] != 1 || limited != 1 {
		t.Fatalf("calls=%v limited=%d", calls, limited)
	}
}

func TestRateLimitExclusions(t *testing.T) {
	calls := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	h := mw(func(tele.Context) error { calls++; return nil })
	_ = h(newFakeContext(1, 10, "a"))
	_ = h(newFakeContext(2, 10, "b"))
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestLoggerMiddlewareSetsRID(t *testing.T) {
	var got any
	h := NewLoggerMiddleware()(func(c tele.Context) error {
		got = c.Get("rid")
		return nil
	})
	if err := h(newFakeContext(7, 3, "hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rid, _ := got.(string); rid == "" {
		t.Fatalf("rid not set")
	}
}

func TestUpdateSeenDeduplicates(t *testing.T) {
	u := newUpdateSeen()
	now := time.Unix(100, 0)
	u.now = func() time.Time { return now }
	if !u.first(1) || u.first(1) {
		t.Fatal("second sighting should be suppressed")
	}
	now = now.Add(dedupWindow + time.Second)
	if !u.first(1) {
		t.Fatal("entry should expire after the window")
	}
}

func TestMessageMetricsCountsSends(t *testing.T) {
	fc := newFakeContext(1, 1, "hi")
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		if err := c.Send("one"); err != nil {
			return err
		}
		return c.Send("two")
	})
	if err := h(fc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if MessagesSent(fc) != 2 || len(fc.sent) != 2 {
		t.Fatalf("messages=%d sent=%d", MessagesSent(fc), len(fc.sent))
	}
}
