package conversation

import (
	"context"
	"strings"

	"github.com/m3rciful/weatherbot/internal/session"
)

// DefaultCommands returns the commands checked before state dispatch.
func DefaultCommands() []CommandHandler {
	return []CommandHandler{StartCommand{}, HelpCommand{}}
}

// StartCommand resets the conversation from any state.
type StartCommand struct{}

func (StartCommand) Name() string             { return "start" }
func (StartCommand) Description() string      { return "Start over" }
func (StartCommand) Matches(text string) bool { return commandName(text) == "start" }

func (StartCommand) Handle(context.Context, *UserRequest) (Outcome, error) {
	return Outcome{Reply: Reply{Text: msgGreeting}, Next: session.StateConversationStarted}, nil
}

// HelpCommand explains usage and keeps the state.
type HelpCommand struct{}

func (HelpCommand) Name() string             { return "help" }
func (HelpCommand) Description() string      { return "How to use the bot" }
func (HelpCommand) Matches(text string) bool { return commandName(text) == "help" }

func (HelpCommand) Handle(_ context.Context, req *UserRequest) (Outcome, error) {
	return Outcome{Reply: Reply{Text: msgHelp}, Next: req.Session.State, LastCity: req.Session.LastCity}, nil
}

// commandName extracts "start" from "/start", "/Start@weather_bot arg" and the like.
// Text that is not a command yields "".
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
