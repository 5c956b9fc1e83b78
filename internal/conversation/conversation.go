// Package conversation routes user messages to the handler for the user's
// current conversation state and applies the resulting transition.
package conversation

import (
	"context"

	"github.com/m3rciful/weatherbot/internal/session"
	"github.com/m3rciful/weatherbot/internal/weather"
)

// codedError carries a stable code for handler summary logs.
type codedError struct{ code, msg string }

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

var (
	// ErrUnroutableUpdate means no handler accepts the session state.
	ErrUnroutableUpdate error = &codedError{"UNROUTABLE_UPDATE", "conversation: unroutable update"}
	// ErrSessionStore wraps failures to read or write the session.
	ErrSessionStore error = &codedError{"SESSION_STORE", "conversation: session store failure"}
	// ErrMissingHandler is returned when a state has no handler.
	ErrMissingHandler error = &codedError{"MISSING_HANDLER", "conversation: state without handler"}
	// ErrDuplicateHandler is returned when a state has more than one handler.
	ErrDuplicateHandler error = &codedError{"DUPLICATE_HANDLER", "conversation: state with several handlers"}
)

// Update is a transport-neutral inbound message.
type Update struct {
	UpdateID int
	UserID   int64
	ChatID   int64
	Text     string
}

// UserRequest is built once per update and never persisted.
type UserRequest struct {
	Update  Update
	ChatID  int64
	Session session.UserSession
}

// Reply is what goes back to the chat.
type Reply struct {
	Text     string
	Markdown bool
	Weather  *weather.Current
}

// Outcome is a handler's result: the reply plus the session transition.
type Outcome struct {
	Reply    Reply
	Next     session.State
	LastCity string
}

// StateHandler processes a message while the user is in State().
type StateHandler interface {
	State() session.State
	Handle(ctx context.Context, req *UserRequest) (Outcome, error)
}

// CommandHandler intercepts a message before state dispatch.
type CommandHandler interface {
	Name() string
	Description() string
	Matches(text string) bool
	Handle(ctx context.Context, req *UserRequest) (Outcome, error)
}
