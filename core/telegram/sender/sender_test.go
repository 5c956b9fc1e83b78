package sender

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newTestSender(retries int) (*Sender, *[]time.Duration) {
	s := New(Options{MaxRetries: retries, RetryBackoff: 10 * time.Millisecond})
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestDoRetriesTransientErrors(t *testing.T) {
	s, slept := newTestSender(2)
	calls := 0
	err := s.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 || (*slept)[1] != 20*time.Millisecond {
		t.Fatalf("backoff = %v", *slept)
	}
	if s.ErrorCount() != 0 {
		t.Fatalf("error count = %d", s.ErrorCount())
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	s, _ := newTestSender(3)
	calls := 0
	permanent := errors.New("telegram: bad request: chat not found (400)")
	err := s.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	if s.ErrorCount() != 1 {
		t.Fatalf("error count = %d", s.ErrorCount())
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	s, _ := newTestSender(1)
	calls := 0
	err := s.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls++
		return io.ErrUnexpectedEOF
	})
	if !errors.Is(err, io.ErrUnexpectedEOF) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoHonoursCanceledContext(t *testing.T) {
	s, _ := newTestSender(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := s.Do(ctx, "send.text", "sendMessage", func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{errors.New("telegram: internal server error (502)"), "http_5xx"},
		{errors.New("telegram: bad request (400)"), "http_4xx"},
		{&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, "http_4xx"},
		{errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		if got := classifyError(tc.err); got != tc.want {
			t.Fatalf("classifyError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSanitizeErrorRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_DD/sendMessage": EOF`)
	got := SanitizeError(err)
	if got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("got %s", got)
	}
}
