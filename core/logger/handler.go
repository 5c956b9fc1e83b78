package logger

import (
	"context"
	"log/slog"
)

// contextHandler copies correlation fields stored in the context onto each record.
type contextHandler struct {
	next slog.Handler
}

func newContextHandler(next slog.Handler) *contextHandler {
	return &contextHandler{next: next}
}

// Enabled defers to the wrapped handler.
func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle enriches the record with rid, update, user, chat and handler ids when present.
func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if rid := RIDFrom(ctx); rid != "" {
			r.AddAttrs(slog.String("rid", rid))
		}
		if id := UpdateIDFrom(ctx); id != 0 {
			r.AddAttrs(slog.Int("update_id", id))
		}
		if id := UserIDFrom(ctx); id != 0 {
			r.AddAttrs(slog.Int64("user_id", id))
		}
		if id := ChatIDFrom(ctx); id != 0 {
			r.AddAttrs(slog.Int64("chat_id", id))
		}
		if name := HandlerFrom(ctx); name != "" {
			r.AddAttrs(slog.String("handler", name))
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler whose wrapped handler carries attrs.
func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

// WithGroup returns a handler whose wrapped handler opens the group.
func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
