package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/internal/session"
)

// Dispatcher selects the handler for a request and persists the transition.
type Dispatcher struct {
	registry *Registry
	store    session.Store
	now      func() time.Time
}

// NewDispatcher returns a Dispatcher over a validated registry.
func NewDispatcher(reg *Registry, store session.Store) *Dispatcher {
	return &Dispatcher{registry: reg, store: store, now: time.Now}
}

// Dispatch runs the matching command or state handler. It reports false when
// nothing accepts the request; the session is then left untouched.
// On success req.Session holds the saved session.
func (d *Dispatcher) Dispatch(ctx context.Context, req *UserRequest) (Reply, bool, error) {
	var (
		handle func(context.Context, *UserRequest) (Outcome, error)
		name   string
	)
	if cmd, ok := d.registry.Command(req.Update.Text); ok {
		handle, name = cmd.Handle, "/"+cmd.Name()
	} else if h, ok := d.registry.Handler(req.Session.State); ok {
		handle, name = h.Handle, string(h.State())
	} else {
		return Reply{}, false, nil
	}

	ctx = logger.WithHandler(ctx, name)
	out, err := handle(ctx, req)
	if err != nil {
		return Reply{}, true, fmt.Errorf("handler %s: %w", name, err)
	}

	next := req.Session
	if out.Next != "" {
		next.State = out.Next
	}
	next.LastCity = out.LastCity
	next.UpdatedAt = d.now().UTC()

	if err := d.store.Save(ctx, next); err != nil {
		return Reply{}, true, fmt.Errorf("%w: save user %d: %w", ErrSessionStore, next.TelegramUserID, err)
	}

	if next.State != req.Session.State {
		logger.LogEvent(ctx, logger.Conversation, slog.LevelDebug, "state.transition",
			slog.String("from", string(req.Session.State)),
			slog.String("to", string(next.State)),
		)
	}
	req.Session = next
	return out.Reply, true, nil
}
