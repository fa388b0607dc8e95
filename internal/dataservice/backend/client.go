// Package backend provides a client for the road network data service HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/airquality"
	"github.com/breatheroute/roadpulse/internal/dataservice"
	"github.com/breatheroute/roadpulse/internal/provider/resilience"
	"github.com/breatheroute/roadpulse/internal/roads"
)

const (
	// DefaultBaseURL is the base URL of a locally running data service.
	DefaultBaseURL = "http://localhost:8000"

	// ProviderName identifies this upstream in the resilience registry.
	ProviderName = "data-service"

	// dateLayout is the timestamp format the service expects: UTC with milliseconds.
	dateLayout = "2006-01-02T15:04:05.000Z"

	maxBodyBytes = 64 << 20
)

// ClientConfig holds configuration for the data service client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Registry receives the default client's health, if set.
	Registry *resilience.Registry

	// Logger reports circuit breaker state changes of the default client.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a data service API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

var _ dataservice.Source = (*Client)(nil)

// NewClient creates a new data service client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Registry:        cfg.Registry,
			Logger:          cfg.Logger,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// FetchSamples retrieves the pollutant samples around the query center at the query time.
// The service encodes each sample as a [lat, lon, value] triple.
func (c *Client) FetchSamples(ctx context.Context, q dataservice.Query) ([]airquality.Sample, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := regionParams(q)
	params.Set("date", q.Time.UTC().Format(dateLayout))

	body, err := c.get(ctx, "/airquality", params)
	if err != nil {
		return nil, fmt.Errorf("fetch samples: %w", err)
	}

	var triples [][]float64
	if err := json.Unmarshal(body, &triples); err != nil {
		return nil, fmt.Errorf("decode samples: %w: %v", dataservice.ErrMalformedResponse, err)
	}
	if triples == nil {
		return nil, fmt.Errorf("fetch samples: %w", dataservice.ErrEmptyResponse)
	}

	samples := make([]airquality.Sample, 0, len(triples))
	for i, t := range triples {
		if len(t) != 3 {
			return nil, fmt.Errorf("decode sample %d: want 3 values, got %d: %w", i, len(t), dataservice.ErrMalformedResponse)
		}
		samples = append(samples, airquality.Sample{Lat: t[0], Lon: t[1], Value: t[2]})
	}

	return samples, nil
}

// FetchRoads retrieves the road network around the query center as GeoJSON.
func (c *Client) FetchRoads(ctx context.Context, q dataservice.Query) ([]roads.Road, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/roads", regionParams(q))
	if err != nil {
		return nil, fmt.Errorf("fetch roads: %w", err)
	}

	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, fmt.Errorf("fetch roads: %w", dataservice.ErrEmptyResponse)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decode roads: %w: %v", dataservice.ErrMalformedResponse, err)
	}

	return roads.FromFeatureCollection(fc), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, dataservice.ErrEmptyResponse
	}

	return body, nil
}

func regionParams(q dataservice.Query) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(q.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(q.Lon, 'f', -1, 64))
	params.Set("distancia", strconv.FormatFloat(q.RadiusMeters, 'f', -1, 64))
	return params
}
