package main

import (
	"context"
	"log"

	"github.com/m3rciful/weatherbot/core/bootstrap"
	corecmd "github.com/m3rciful/weatherbot/core/cmd"
	coreconfig "github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/health"
	tgsender "github.com/m3rciful/weatherbot/core/telegram/sender"
	"github.com/m3rciful/weatherbot/internal/bot"
	"github.com/m3rciful/weatherbot/internal/conversation"
	"github.com/m3rciful/weatherbot/internal/session"
	"github.com/m3rciful/weatherbot/internal/weather"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: build,
	})
	if err != nil {
		log.Fatal(err)
	}
}

func build(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	store := res.Store

	provider := weather.NewFromConfig(cfg.Weather)
	reg, err := conversation.NewRegistry(
		conversation.StateHandlers(provider, provider),
		conversation.DefaultCommands()...,
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	service := conversation.NewService(store, session.NewLocker(), conversation.NewDispatcher(reg, store))

	app, err := bot.New(bot.Deps{
		Config:  cfg,
		Service: service,
		Sender:  tgsender.New(tgsender.Options{MaxRetries: cfg.Telegram.SendRetries}),
		Checks:  map[string]health.Check{"session_store": store.Ping},
		Close:   store.Close,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}
