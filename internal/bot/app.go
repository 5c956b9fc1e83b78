// Package bot wires the conversation service into the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/health"
	"github.com/m3rciful/weatherbot/core/logger"
	tg "github.com/m3rciful/weatherbot/core/telegram"
	"github.com/m3rciful/weatherbot/core/telegram/commands"
	"github.com/m3rciful/weatherbot/core/telegram/router"
	tgsender "github.com/m3rciful/weatherbot/core/telegram/sender"
	"github.com/m3rciful/weatherbot/internal/conversation"
)

// Deps are the collaborators built by bootstrap.
type Deps struct {
	Config  *coreconfig.Config
	Service *conversation.Service
	Sender  *tgsender.Sender
	// Checks feed the readiness endpoint.
	Checks map[string]health.Check
	// Close releases the session store; called once on stop.
	Close func() error
}

// App is the weather bot ready to be run by core/cmd.
type App struct {
	cfg     *coreconfig.Config
	service *conversation.Service
	sender  *tgsender.Sender
	adapter *Adapter
	health  *health.Server
	close   func() error
}

// New validates deps and builds the App.
func New(d Deps) (*App, error) {
	if d.Config == nil || d.Service == nil {
		return nil, errors.New("bot: config and service are required")
	}
	snd := d.Sender
	if snd == nil {
		snd = tgsender.New(tgsender.Options{MaxRetries: d.Config.Telegram.SendRetries})
	}
	app := &App{
		cfg:     d.Config,
		service: d.Service,
		sender:  snd,
		adapter: NewAdapter(d.Service, snd),
		close:   d.Close,
	}
	if d.Config.Health.Listen != "" {
		app.health = health.New(d.Config.Health.Listen, d.Checks)
	}
	return app, nil
}

// CoreConfig satisfies the runner's config carrier.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

// TelegramRunOptions assembles routes, middleware and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	for _, cmd := range a.service.Commands() {
		err := reg.RegisterCommand("/"+cmd.Name(), commands.Command{
			Handler:     a.adapter.HandleText,
			Description: cmd.Description(),
		})
		if err != nil {
			return tg.RunOptions{}, fmt.Errorf("bot: %w", err)
		}
	}

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.TextRoutes(router.TextOptions{
		Text:        a.adapter.HandleText,
		Unsupported: a.adapter.HandleUnsupported,
	})...)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Sender:      a.sender,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(_ context.Context, _ tg.Runtime) error {
	if a.health == nil {
		return nil
	}
	if err := a.health.Start(); err != nil {
		return fmt.Errorf("bot: health server: %w", err)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, rt tg.Runtime) error {
	var errs []error
	if a.health != nil {
		errs = append(errs, a.health.Shutdown(ctx))
	}
	if a.close != nil {
		errs = append(errs, a.close())
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "stopped",
		slog.Uint64("send_failures", rt.Sender.ErrorCount()),
	)
	return errors.Join(errs...)
}
