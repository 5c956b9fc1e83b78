package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/weatherbot/core/logger"
	tghelpers "github.com/m3rciful/weatherbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const dedupWindow = 10 * time.Second

// updateSeen remembers recent update ids so one update logs one receipt line
// even when the middleware wraps several routes.
type updateSeen struct {
	mu   sync.Mutex
	seen map[int]time.Time
	now  func() time.Time
}

func newUpdateSeen() *updateSeen {
	return &updateSeen{seen: make(map[int]time.Time), now: time.Now}
}

func (u *updateSeen) first(updateID int) bool {
	now := u.now()
	u.mu.Lock()
	defer u.mu.Unlock()
	for id, ts := range u.seen {
		if now.Sub(ts) > dedupWindow {
			delete(u.seen, id)
		}
	}
	if _, ok := u.seen[updateID]; ok {
		return false
	}
	u.seen[updateID] = now
	return true
}

// NewLoggerMiddleware sets the request id and logging context for each update
// and logs a sampled receipt line.
func NewLoggerMiddleware() tele.MiddlewareFunc {
	seen := newUpdateSeen()
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			user := c.Sender()
			chat := c.Chat()

			chatID, userID := int64(0), int64(0)
			if chat != nil {
				chatID = chat.ID
			}
			if user != nil {
				userID = user.ID
			}
			rid := logger.BuildRID(upd.ID, chatID, userID)
			c.Set("rid", rid)
			c.Set("update_start", time.Now())

			ctx := logger.WithRID(context.Background(), rid)
			ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
			ctx = logger.WithLogger(ctx, logger.TG)
			tghelpers.StoreContext(c, ctx)

			if seen.first(upd.ID) && logger.ShouldSampleDebug() {
				attrs := []slog.Attr{slog.String("status", "ok")}
				if chat != nil {
					attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
				}
				if user != nil && user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user != nil && user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
				if upd.Message != nil {
					if t := c.Text(); t != "" {
						attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
					}
				}
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
			}

			return next(c)
		}
	}
}
