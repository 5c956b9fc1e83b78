package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/internal/session"
	"github.com/m3rciful/weatherbot/internal/weather"
)

// StateHandlers returns one handler per conversation state.
func StateHandlers(validator weather.CityValidator, lookup weather.Lookup) []StateHandler {
	q := cityQuery{validator: validator, lookup: lookup}
	return []StateHandler{
		startedHandler{},
		awaitingCityHandler{q: q},
		cityConfirmedHandler{q: q},
	}
}

type startedHandler struct{}

func (startedHandler) State() session.State { return session.StateConversationStarted }

func (startedHandler) Handle(_ context.Context, req *UserRequest) (Outcome, error) {
	return Outcome{
		Reply:    Reply{Text: msgAskCity},
		Next:     session.StateAwaitingCity,
		LastCity: req.Session.LastCity,
	}, nil
}

type awaitingCityHandler struct{ q cityQuery }

func (awaitingCityHandler) State() session.State { return session.StateAwaitingCity }

func (h awaitingCityHandler) Handle(ctx context.Context, req *UserRequest) (Outcome, error) {
	return h.q.run(ctx, req, session.StateAwaitingCity), nil
}

// cityConfirmedHandler treats every message as the next city query.
// An unknown city sends the user back to awaiting_city.
type cityConfirmedHandler struct{ q cityQuery }

func (cityConfirmedHandler) State() session.State { return session.StateCityConfirmed }

func (h cityConfirmedHandler) Handle(ctx context.Context, req *UserRequest) (Outcome, error) {
	return h.q.run(ctx, req, session.StateAwaitingCity), nil
}

type cityQuery struct {
	validator weather.CityValidator
	lookup    weather.Lookup
}

// run validates the city and fetches its weather. Provider failures keep the
// current state and city.
func (q cityQuery) run(ctx context.Context, req *UserRequest, onUnknown session.State) Outcome {
	cur := req.Session
	stay := func(text string) Outcome {
		return Outcome{Reply: Reply{Text: text}, Next: cur.State, LastCity: cur.LastCity}
	}

	name := strings.Join(strings.Fields(req.Update.Text), " ")
	if name == "" {
		return stay(msgEmptyCity)
	}

	ok, err := q.validator.CityExists(ctx, name)
	if err != nil {
		logProviderFailure(ctx, "validate", name, err)
		return stay(msgUnavailable)
	}
	if !ok {
		return Outcome{Reply: Reply{Text: msgCityUnknown(name)}, Next: onUnknown, LastCity: cur.LastCity}
	}

	report, err := q.lookup.Current(ctx, name)
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		return Outcome{Reply: Reply{Text: msgCityUnknown(name)}, Next: onUnknown, LastCity: cur.LastCity}
	case err != nil:
		logProviderFailure(ctx, "current", name, err)
		return stay(msgUnavailable)
	}

	return Outcome{
		Reply:    Reply{Text: FormatWeather(report), Markdown: true, Weather: &report},
		Next:     session.StateCityConfirmed,
		LastCity: name,
	}
}

func logProviderFailure(ctx context.Context, op, city string, err error) {
	logger.LogEvent(ctx, logger.Conversation, slog.LevelWarn, "provider.unavailable",
		slog.String("op", op),
		slog.String("city", logger.SanitizeLimit(city, 64)),
		slog.String("err", err.Error()),
	)
}
