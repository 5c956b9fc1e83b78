package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/core/netutil"
)

const maxBodyBytes = 1 << 20

// Options configures Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Units      string
	Lang       string
	HTTPClient *http.Client
	// Limiter throttles outbound calls; nil means unlimited.
	Limiter *rate.Limiter
}

// Client implements CityValidator and Lookup over the OpenWeatherMap HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	units   string
	lang    string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a provider client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	units := opts.Units
	if units == "" {
		units = "metric"
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		units:   units,
		lang:    opts.Lang,
		http:    hc,
		limiter: opts.Limiter,
	}
}

// NewFromConfig wires the client with the shared retrying HTTP client and a token bucket.
func NewFromConfig(cfg coreconfig.WeatherConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return NewClient(Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Units:   cfg.Units,
		Lang:    cfg.Lang,
		HTTPClient: netutil.BuildHTTPClient(netutil.ClientOptions{
			Timeout:       timeout,
			RetryAttempts: 2,
			RetryBackoff:  300 * time.Millisecond,
		}),
		Limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	})
}

type geoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

type currentResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

// CityExists asks the geocoding endpoint for the name and reports whether anything matched.
func (c *Client) CityExists(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	q := url.Values{}
	q.Set("q", name)
	q.Set("limit", "1")

	var results []geoResult
	status, err := c.getJSON(ctx, "geocode", "/geo/1.0/direct", q, &results)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	return len(results) > 0, nil
}

// Current fetches current conditions for the city.
func (c *Client) Current(ctx context.Context, name string) (Current, error) {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(name))
	q.Set("units", c.units)
	if c.lang != "" {
		q.Set("lang", c.lang)
	}

	var resp currentResponse
	status, err := c.getJSON(ctx, "current", "/data/2.5/weather", q, &resp)
	if err != nil {
		return Current{}, err
	}
	if status == http.StatusNotFound {
		return Current{}, ErrCityNotFound
	}

	out := Current{
		City:        resp.Name,
		Country:     resp.Sys.Country,
		Temperature: resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		Pressure:    resp.Main.Pressure,
		WindSpeed:   resp.Wind.Speed,
		Units:       c.units,
	}
	if out.City == "" {
		out.City = strings.TrimSpace(name)
	}
	if len(resp.Weather) > 0 {
		out.Description = resp.Weather[0].Description
	}
	return out, nil
}

// getJSON performs a GET and decodes a 2xx body into dst. A 404 is returned as
// status without error so callers can map it; every other failure is a *LookupError.
func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, dst any) (int, error) {
	lookupID := uuid.NewString()
	start := time.Now()
	log := logger.Weather.With(slog.String("op", op), slog.String("lookup_id", lookupID))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, &LookupError{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	q.Set("appid", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return 0, &LookupError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", lookupID)

	resp, err := c.http.Do(req)
	if err != nil {
		log.LogAttrs(ctx, slog.LevelWarn, "provider.fail",
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", redactKey(err.Error(), c.apiKey)),
		)
		return 0, &LookupError{Op: op, Err: errors.New(redactKey(err.Error(), c.apiKey))}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, &LookupError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	log.LogAttrs(ctx, slog.LevelDebug, "provider.response",
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.LogAttrs(ctx, slog.LevelWarn, "provider.status",
			slog.Int("http_code", resp.StatusCode),
			slog.String("payload", logger.SanitizeLimit(string(body), 256)),
		)
		return resp.StatusCode, &LookupError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return resp.StatusCode, &LookupError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return resp.StatusCode, nil
}

func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, "<redacted>")
}
