package router

import (
	"time"

	tg "github.com/m3rciful/weatherbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls routing of text and non-text messages.
type TextOptions struct {
	// Text handles every plain text message that is not a registered command.
	Text tele.HandlerFunc
	// Unsupported answers media and other non-text messages; nil ignores them.
	Unsupported tele.HandlerFunc
}

// TextRoutes builds handlers for text and unsupported message kinds.
func TextRoutes(opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		start := time.Now()
		if opts.Text == nil {
			logHandlerSummary(c, "unknown_text", start, nil)
			return nil
		}
		return handleWithSummary(c, "text", start, func() error { return opts.Text(c) })
	}

	unsupported := func(c tele.Context) error {
		start := time.Now()
		if opts.Unsupported == nil {
			logHandlerSummary(c, "unsupported", start, nil)
			return nil
		}
		return handleWithSummary(c, "unsupported", start, func() error { return opts.Unsupported(c) })
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	for _, ep := range []string{tele.OnPhoto, tele.OnDocument, tele.OnSticker, tele.OnVoice, tele.OnLocation} {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: unsupported})
	}
	return routes
}
