package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/weatherbot/core/telegram/format"
	"github.com/m3rciful/weatherbot/internal/weather"
)

const (
	msgGreeting    = "Hi! I can tell you the current weather anywhere. Send me any message to begin."
	msgAskCity     = "Which city are you interested in? Send me its name."
	msgEmptyCity   = "Please send a city name, for example: London."
	msgUnavailable = "The weather service is unavailable right now. Please try again later."
	msgNextCity    = "Send another city name to check it too, or /start to begin again."
	msgHelp        = "Send a city name and I will reply with the current weather there.\n\n" +
		"/start - start over\n" +
		"/help - show this message"
)

func msgCityUnknown(name string) string {
	return fmt.Sprintf("I could not find a city called %q. Please check the spelling and try again.", name)
}

// FormatWeather renders a report as MarkdownV2.
func FormatWeather(w weather.Current) string {
	tempUnit, speedUnit := unitLabels(w.Units)

	place := w.City
	if w.Country != "" {
		place += ", " + w.Country
	}

	var b strings.Builder
	b.WriteString("*")
	b.WriteString(format.EscapeMarkdownV2(place))
	b.WriteString("*\n")
	if w.Description != "" {
		b.WriteString(format.EscapeMarkdownV2(upperFirst(w.Description)))
		b.WriteString("\n")
	}
	line := func(label, value string) {
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(format.EscapeMarkdownV2(value))
		b.WriteString("\n")
	}
	line("Temperature", fmt.Sprintf("%.1f%s (feels like %.1f%s)", w.Temperature, tempUnit, w.FeelsLike, tempUnit))
	line("Humidity", fmt.Sprintf("%d%%", w.Humidity))
	line("Wind", fmt.Sprintf("%.1f %s", w.WindSpeed, speedUnit))
	line("Pressure", fmt.Sprintf("%d hPa", w.Pressure))
	b.WriteString("\n")
	b.WriteString(format.EscapeMarkdownV2(msgNextCity))
	return b.String()
}

func unitLabels(units string) (temp, speed string) {
	switch units {
	case "imperial":
		return "°F", "mph"
	case "standard":
		return "K", "m/s"
	default:
		return "°C", "m/s"
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
