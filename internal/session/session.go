// Package session holds per-user conversation state and the stores that persist it.
package session

import (
	"context"
	"errors"
	"time"
)

// State identifies the conversation phase a user is in.
type State string

const (
	// StateConversationStarted is assigned to every new user and after a reset.
	StateConversationStarted State = "conversation_started"
	// StateAwaitingCity waits for the user to type a city name.
	StateAwaitingCity State = "awaiting_city"
	// StateCityConfirmed follows a delivered weather report.
	StateCityConfirmed State = "city_confirmed"
)

var states = []State{StateConversationStarted, StateAwaitingCity, StateCityConfirmed}

// States lists every known conversation state.
func States() []State {
	return append([]State(nil), states...)
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	for _, known := range states {
		if s == known {
			return true
		}
	}
	return false
}

// UserSession is the conversation record of one Telegram user.
type UserSession struct {
	TelegramUserID int64     `db:"telegram_user_id" json:"telegram_user_id"`
	State          State     `db:"conversation_state" json:"conversation_state"`
	LastCity       string    `db:"last_city" json:"last_city,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// New returns the in-memory default session for a first-time user.
// It is not persisted until a handler runs.
func New(userID int64) UserSession {
	return UserSession{TelegramUserID: userID, State: StateConversationStarted}
}

// ErrInvalidSession is returned by stores asked to save a malformed record.
var ErrInvalidSession = errors.New("session: invalid session")

// Validate checks the invariants every stored session must satisfy.
func (s UserSession) Validate() error {
	if s.TelegramUserID == 0 {
		return errors.Join(ErrInvalidSession, errors.New("empty user id"))
	}
	if !s.State.Valid() {
		return errors.Join(ErrInvalidSession, errors.New("unknown state "+string(s.State)))
	}
	return nil
}

// Store persists one session per user id with read-after-write consistency.
type Store interface {
	Get(ctx context.Context, userID int64) (UserSession, bool, error)
	Save(ctx context.Context, s UserSession) error
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LoadOrNew returns the stored session or a fresh default one.
func LoadOrNew(ctx context.Context, store Store, userID int64) (UserSession, error) {
	s, ok, err := store.Get(ctx, userID)
	if err != nil {
		return UserSession{}, err
	}
	if !ok {
		return New(userID), nil
	}
	return s, nil
}
