// Package routing is a client for an OpenRouteService-compatible geocoding
// and directions API.
//
// The client is stateless apart from its configuration: it does not cache
// and does not retry. A failed call is returned immediately as one of the
// typed errors in errors.go and retry policy belongs to the caller.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public OpenRouteService endpoint.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultCountry biases geocoding towards Austrian addresses.
	DefaultCountry = "AT"

	// DefaultTimeout bounds every single HTTP call.
	DefaultTimeout = 15 * time.Second

	// connectivityAddress is geocoded by TestConnectivity.
	connectivityAddress = "Vienna, Austria"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 512

	// maxResponseBody caps how much of any response is read.
	maxResponseBody = 16 << 20
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

func (c Coordinates) String() string {
	return formatCoord(c.Lon) + "," + formatCoord(c.Lat)
}

// Route is a directions result converted to the tour's units.
type Route struct {
	DistanceKm      float64
	DurationMinutes int
	// Geometry is the provider's first route feature serialized verbatim.
	Geometry string
}

// Config holds the client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Country string
	Timeout time.Duration
	Logger  *log.Logger
	// Debug logs request URLs (without the api key) and response sizes.
	Debug bool
	// HTTPClient overrides the default client. Its Timeout is left as is.
	HTTPClient *http.Client
}

// Client talks to the routing provider.
type Client struct {
	baseURL string
	apiKey  string
	country string
	timeout time.Duration
	http    *http.Client
	logger  *log.Logger
	debug   bool
}

// NewClient creates a client from cfg, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[routing] ", log.LstdFlags)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		country: cfg.Country,
		timeout: cfg.Timeout,
		http:    httpClient,
		logger:  cfg.Logger,
		debug:   cfg.Debug,
	}
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode resolves a free-text address to the coordinates of the provider's
// best candidate.
func (c *Client) Geocode(ctx context.Context, address string) (Coordinates, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Coordinates{}, fmt.Errorf("empty address: %w", ErrAddressNotFound)
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("text", address)
	if c.country != "" {
		q.Set("boundary.country", c.country)
	}

	body, err := c.get(ctx, "/geocode/search", q)
	if err != nil {
		return Coordinates{}, fmt.Errorf("failed to geocode %q: %w", address, err)
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Coordinates{}, fmt.Errorf("failed to decode geocode response for %q: %w: %v", address, ErrParse, err)
	}
	if len(resp.Features) == 0 {
		return Coordinates{}, fmt.Errorf("could not geocode %q: %w", address, ErrAddressNotFound)
	}
	coords := resp.Features[0].Geometry.Coordinates
	if len(coords) < 2 {
		return Coordinates{}, fmt.Errorf("geocode feature for %q has no coordinates: %w", address, ErrParse)
	}

	return Coordinates{Lon: coords[0], Lat: coords[1]}, nil
}

type directionsResponse struct {
	Features []json.RawMessage `json:"features"`
}

type routeFeature struct {
	Properties *struct {
		Summary *struct {
			Distance *float64 `json:"distance"`
			Duration *float64 `json:"duration"`
		} `json:"summary"`
	} `json:"properties"`
}

// Route fetches directions between two coordinates for a profile.
// Distance is converted from meters to kilometers and duration from seconds
// to whole minutes, truncating.
func (c *Client) Route(ctx context.Context, from, to Coordinates, profile Profile) (Route, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("start", from.String())
	q.Set("end", to.String())

	body, err := c.get(ctx, "/v2/directions/"+url.PathEscape(string(profile)), q)
	if err != nil {
		return Route{}, fmt.Errorf("failed to fetch %s directions: %w", profile, err)
	}

	var resp directionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Route{}, fmt.Errorf("failed to decode directions response: %w: %v", ErrParse, err)
	}
	if len(resp.Features) == 0 {
		return Route{}, fmt.Errorf("directions %s -> %s (%s): %w", from, to, profile, ErrNoRoute)
	}

	raw := resp.Features[0]
	var feature routeFeature
	if err := json.Unmarshal(raw, &feature); err != nil {
		return Route{}, fmt.Errorf("failed to decode route feature: %w: %v", ErrParse, err)
	}
	if feature.Properties == nil || feature.Properties.Summary == nil {
		return Route{}, fmt.Errorf("route response missing summary: %w", ErrParse)
	}
	summary := feature.Properties.Summary
	if summary.Distance == nil || summary.Duration == nil {
		return Route{}, fmt.Errorf("route summary missing distance or duration: %w", ErrParse)
	}

	var geometry bytes.Buffer
	if err := json.Compact(&geometry, raw); err != nil {
		return Route{}, fmt.Errorf("failed to compact route feature: %w: %v", ErrParse, err)
	}

	return Route{
		DistanceKm:      *summary.Distance / 1000.0,
		DurationMinutes: int(*summary.Duration) / 60,
		Geometry:        geometry.String(),
	}, nil
}

// TestConnectivity geocodes a fixed address and reports whether the
// provider answered usefully. It never returns an error.
func (c *Client) TestConnectivity(ctx context.Context) bool {
	if _, err := c.Geocode(ctx, connectivityAddress); err != nil {
		c.logger.Printf("connectivity check failed: %v", err)
		return false
	}
	return true
}

// get performs one GET request bounded by the client timeout and returns
// the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Keep context errors visible to callers that check for cancellation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrHTTP, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrHTTP, err)
	}

	if c.debug {
		c.logger.Printf("GET %s -> %d (%d bytes, %s)", redact(endpoint), resp.StatusCode, len(body), time.Since(start).Round(time.Millisecond))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
	return body, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redact strips the api key from a URL before it is logged.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
