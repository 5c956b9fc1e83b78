package conversation

import (
	"context"
	"fmt"

	"github.com/m3rciful/weatherbot/internal/session"
)

// Service is the single entry point the transport calls per update.
type Service struct {
	store      session.Store
	locker     *session.Locker
	dispatcher *Dispatcher
}

// NewService wires the store, per-user locker and dispatcher.
func NewService(store session.Store, locker *session.Locker, dispatcher *Dispatcher) *Service {
	return &Service{store: store, locker: locker, dispatcher: dispatcher}
}

// Handle loads the user's session, dispatches the update and returns the reply.
// Updates of one user never run concurrently.
func (s *Service) Handle(ctx context.Context, upd Update) (Reply, error) {
	unlock, err := s.locker.Lock(ctx, upd.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("lock user %d: %w", upd.UserID, err)
	}
	defer unlock()

	sess, err := session.LoadOrNew(ctx, s.store, upd.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: load user %d: %w", ErrSessionStore, upd.UserID, err)
	}

	req := &UserRequest{Update: upd, ChatID: upd.ChatID, Session: sess}
	reply, handled, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	if !handled {
		return Reply{}, fmt.Errorf("%w: state %q", ErrUnroutableUpdate, sess.State)
	}
	return reply, nil
}

// Commands exposes registered commands for the bot menu.
func (s *Service) Commands() []CommandHandler {
	return s.dispatcher.registry.Commands()
}
