package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextHandlerAddsCorrelationFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(newContextHandler(slog.NewJSONHandler(buf, nil))).With("component", "conversation")

	ctx := WithRID(context.Background(), "42:9:7")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	ctx = WithHandler(ctx, "state.awaiting_city")
	LogEvent(ctx, log, slog.LevelInfo, "dispatch.handled", slog.String("status", "ok"))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":       "dispatch.handled",
		"component": "conversation",
		"status":    "ok",
		"rid":       "42:9:7",
		"update_id": float64(42),
		"user_id":   float64(7),
		"chat_id":   float64(9),
		"handler":   "state.awaiting_city",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s = %v, want %v (line %s)", k, got[k], v, buf.String())
		}
	}
}

func TestContextHandlerSkipsMissingFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := slog.New(newContextHandler(slog.NewTextHandler(buf, nil)))
	LogEvent(context.Background(), log, slog.LevelInfo, "plain")

	line := buf.String()
	for _, key := range []string{"rid=", "user_id=", "chat_id=", "handler="} {
		if strings.Contains(line, key) {
			t.Fatalf("unexpected %s in %s", key, line)
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("Lon\x00don\u200b!", 6); got != "London" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("SanitizeLimit with zero max = %q", got)
	}
}

func TestEveryNSampler(t *testing.T) {
	s := newEveryNSampler(3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("allowed = %d, want 3", allowed)
	}
	s.Set(0)
	if !s.Allow() || !s.Allow() {
		t.Fatal("disabled sampler must allow every event")
	}
}
