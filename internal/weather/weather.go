// Package weather talks to an OpenWeatherMap-compatible provider.
package weather

import (
	"context"
	"errors"
	"fmt"
)

// Current is the normalized current-conditions report for a city.
type Current struct {
	City        string
	Country     string
	Description string
	Temperature float64
	FeelsLike   float64
	Humidity    int
	Pressure    int
	WindSpeed   float64
	Units       string
}

// ErrCityNotFound is returned when the provider does not know the city.
var ErrCityNotFound = errors.New("weather: city not found")

// LookupError reports a provider that could not answer: transport failure,
// unexpected status or malformed payload.
type LookupError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("weather %s: provider status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("weather %s: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Code is picked up by handler summary logs.
func (e *LookupError) Code() string { return "PROVIDER_UNAVAILABLE" }

// CityValidator answers whether free text names a real city.
type CityValidator interface {
	CityExists(ctx context.Context, name string) (bool, error)
}

// Lookup returns current weather for a validated city.
type Lookup interface {
	Current(ctx context.Context, name string) (Current, error)
}
