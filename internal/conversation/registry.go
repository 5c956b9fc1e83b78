package conversation

import (
	"fmt"

	"github.com/m3rciful/weatherbot/internal/session"
)

// Registry maps every known state to exactly one handler.
type Registry struct {
	handlers map[session.State]StateHandler
	commands []CommandHandler
}

// NewRegistry checks the state table for totality and uniqueness.
func NewRegistry(handlers []StateHandler, commands ...CommandHandler) (*Registry, error) {
	table := make(map[session.State]StateHandler, len(handlers))
	for _, h := range handlers {
		st := h.State()
		if _, dup := table[st]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, st)
		}
		table[st] = h
	}
	for _, st := range session.States() {
		if _, ok := table[st]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, st)
		}
	}
	return &Registry{handlers: table, commands: append([]CommandHandler(nil), commands...)}, nil
}

// Handler returns the handler for st.
func (r *Registry) Handler(st session.State) (StateHandler, bool) {
	h, ok := r.handlers[st]
	return h, ok
}

// Command returns the first command matching text.
func (r *Registry) Command(text string) (CommandHandler, bool) {
	for _, c := range r.commands {
		if c.Matches(text) {
			return c, true
		}
	}
	return nil, false
}

// Commands lists registered commands in registration order.
func (r *Registry) Commands() []CommandHandler {
	return append([]CommandHandler(nil), r.commands...)
}
