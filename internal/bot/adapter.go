package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/weatherbot/core/logger"
	tghelpers "github.com/m3rciful/weatherbot/core/telegram/helpers"
	"github.com/m3rciful/weatherbot/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

const msgTextOnly = "I only understand text. Please send a city name."

// Handler is the per-update entry point of the conversation core.
type Handler interface {
	Handle(ctx context.Context, upd conversation.Update) (conversation.Reply, error)
}

// Sender delivers replies to the chat of the current update.
type Sender interface {
	SendText(ctx context.Context, c tele.Context, text string) error
	SendMDV2(ctx context.Context, c tele.Context, text string) error
}

// Adapter converts telebot updates into conversation updates and sends replies back.
type Adapter struct {
	handler Handler
	sender  Sender
}

// NewAdapter returns an Adapter.
func NewAdapter(h Handler, s Sender) *Adapter {
	return &Adapter{handler: h, sender: s}
}

// NormalizeUpdate extracts user, chat and text. ok is false for updates
// without a sender, such as channel posts.
func NormalizeUpdate(c tele.Context) (conversation.Update, bool) {
	user := c.Sender()
	if user == nil {
		return conversation.Update{}, false
	}
	chatID := user.ID
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return conversation.Update{
		UpdateID: c.Update().ID,
		UserID:   user.ID,
		ChatID:   chatID,
		Text:     strings.TrimSpace(c.Text()),
	}, true
}

// HandleText routes a text message or command through the conversation service.
// Unroutable updates and session store failures are logged and get no reply.
func (a *Adapter) HandleText(c tele.Context) error {
	upd, ok := NormalizeUpdate(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	reply, err := a.handler.Handle(ctx, upd)
	switch {
	case errors.Is(err, conversation.ErrUnroutableUpdate):
		logger.LogEvent(ctx, logger.Conversation, slog.LevelWarn, "update.unroutable",
			slog.String("err", err.Error()),
		)
		return err
	case errors.Is(err, conversation.ErrSessionStore):
		logger.LogEvent(ctx, logger.Conversation, slog.LevelError, "update.session_store",
			slog.String("err", err.Error()),
		)
		return err
	case err != nil:
		logger.LogEvent(ctx, logger.Conversation, slog.LevelError, "update.failed",
			slog.String("err", err.Error()),
		)
		return err
	}

	if reply.Text == "" {
		return nil
	}
	if reply.Markdown {
		return a.sender.SendMDV2(ctx, c, reply.Text)
	}
	return a.sender.SendText(ctx, c, reply.Text)
}

// HandleUnsupported answers non-text messages without touching the session.
func (a *Adapter) HandleUnsupported(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	return a.sender.SendText(tghelpers.BuildContext(c), c, msgTextOnly)
}
