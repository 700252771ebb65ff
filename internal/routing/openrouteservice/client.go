// Package openrouteservice provides a client for the OpenRouteService matrix
// and directions APIs.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fleetroute/fleetroute/internal/provider/resilience"
	"github.com/fleetroute/fleetroute/internal/routing"
	"github.com/fleetroute/fleetroute/internal/telemetry"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// MatrixClientName is the registry name of the matrix endpoint client.
	MatrixClientName = ProviderName + "-matrix"

	// DirectionsClientName is the registry name of the directions endpoint client.
	DirectionsClientName = ProviderName + "-directions"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultMatrixTimeout bounds one matrix call.
	DefaultMatrixTimeout = 30 * time.Second

	// DefaultDirectionsTimeout bounds one directions call.
	DefaultDirectionsTimeout = 20 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key. An empty key still issues requests;
	// ORS answers 403 and callers fall back.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// Profile is the routing profile (optional, defaults to driving-car).
	Profile routing.RouteProfile

	// MatrixHTTPClient and DirectionsHTTPClient override the per-endpoint
	// HTTP clients. If nil, resilient clients without retries are built.
	MatrixHTTPClient     HTTPDoer
	DirectionsHTTPClient HTTPDoer

	// MatrixTimeout and DirectionsTimeout bound individual calls.
	MatrixTimeout     time.Duration
	DirectionsTimeout time.Duration

	// RequestsPerMinute caps calls per endpoint so a burst of requests does
	// not exhaust the API plan. Calls over the cap fail immediately with
	// routing.ErrRateLimitExceeded. Zero disables the cap.
	RequestsPerMinute int

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records per-call latency and outcome (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	profile    routing.RouteProfile
	matrix     endpoint
	directions endpoint
	registry   *resilience.Registry
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

// endpoint is one ORS API with its own HTTP client and quota.
type endpoint struct {
	name    string // registry name
	path    string // "matrix" or "directions"
	doer    HTTPDoer
	limiter *rate.Limiter
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	profile := cfg.Profile
	if profile == "" {
		profile = routing.ProfileCar
	}

	matrixTimeout := cfg.MatrixTimeout
	if matrixTimeout == 0 {
		matrixTimeout = DefaultMatrixTimeout
	}

	directionsTimeout := cfg.DirectionsTimeout
	if directionsTimeout == 0 {
		directionsTimeout = DefaultDirectionsTimeout
	}

	matrixClient := cfg.MatrixHTTPClient
	if matrixClient == nil {
		matrixClient = newResilientClient(MatrixClientName, matrixTimeout, cfg.Registry, cfg.Logger)
	}

	directionsClient := cfg.DirectionsHTTPClient
	if directionsClient == nil {
		directionsClient = newResilientClient(DirectionsClientName, directionsTimeout, cfg.Registry, cfg.Logger)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		profile: profile,
		matrix: endpoint{
			name:    MatrixClientName,
			path:    "matrix",
			doer:    matrixClient,
			limiter: newLimiter(cfg.RequestsPerMinute),
		},
		directions: endpoint{
			name:    DirectionsClientName,
			path:    "directions",
			doer:    directionsClient,
			limiter: newLimiter(cfg.RequestsPerMinute),
		},
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func newResilientClient(name string, timeout time.Duration, registry *resilience.Registry, logger zerolog.Logger) *resilience.Client {
	clientCfg := resilience.DefaultClientConfig(name)
	clientCfg.Timeout = timeout
	clientCfg.Registry = registry
	clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChange(logger)
	return resilience.NewClient(clientCfg)
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetMatrix retrieves the all-pairs distance and duration matrix in one call.
func (c *Client) GetMatrix(ctx context.Context, req routing.MatrixRequest) (*routing.MatrixResponse, error) {
	if len(req.Locations) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_LOCATIONS",
			Message:  "matrix needs at least two locations",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	locations, err := toLonLat(req.Locations)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(matrixRequest{
		Locations: locations,
		Metrics:   []string{"distance", "duration"},
		Units:     "m",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug().
		Str("profile", string(c.profileFor(req.Profile))).
		Int("locations", len(locations)).
		Msg("requesting matrix from ORS")

	respBody, err := c.post(ctx, c.matrix, c.profileFor(req.Profile), body)
	if err != nil {
		return nil, err
	}

	var orsResp matrixResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, c.malformed(MatrixClientName, "DECODE_FAILED", fmt.Sprintf("decoding matrix response: %v", err))
	}

	n := len(req.Locations)
	if orsResp.Distances == nil {
		return nil, c.malformed(MatrixClientName, "MISSING_DISTANCES", "matrix response has no distances")
	}
	distances, err := toFloatMatrix(orsResp.Distances, n)
	if err != nil {
		return nil, c.malformed(MatrixClientName, "INVALID_DISTANCES", err.Error())
	}

	var durations [][]float64
	if orsResp.Durations != nil {
		durations, err = toFloatMatrix(orsResp.Durations, n)
		if err != nil {
			return nil, c.malformed(MatrixClientName, "INVALID_DURATIONS", err.Error())
		}
	}

	c.recordSuccess(MatrixClientName)

	return &routing.MatrixResponse{Distances: distances, Durations: durations, Provider: ProviderName}, nil
}

// GetDirections retrieves one route that visits the waypoints in order.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if len(req.Waypoints) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_WAYPOINTS",
			Message:  "directions need at least two waypoints",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	coordinates, err := toLonLat(req.Waypoints)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(directionsRequest{
		Coordinates:  coordinates,
		Instructions: false,
		Geometry:     true,
		Units:        "m",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug().
		Str("profile", string(c.profileFor(req.Profile))).
		Int("waypoints", len(coordinates)).
		Msg("requesting directions from ORS")

	respBody, err := c.post(ctx, c.directions, c.profileFor(req.Profile), body)
	if err != nil {
		return nil, err
	}

	var orsResp directionsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, c.malformed(DirectionsClientName, "DECODE_FAILED", fmt.Sprintf("decoding directions response: %v", err))
	}
	if len(orsResp.Routes) == 0 {
		return nil, c.malformed(DirectionsClientName, "NO_ROUTES", "directions response contains no routes")
	}

	result, err := c.toDirectionsResponse(&orsResp)
	if err != nil {
		return nil, err
	}

	c.recordSuccess(DirectionsClientName)

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Int("distance_m", result.Routes[0].DistanceMeters).
		Msg("received directions from ORS")

	return result, nil
}

// post executes one POST against /v2/{endpoint}/{profile} and returns the
// body of a 200 response. Other outcomes are mapped to *routing.Error.
func (c *Client) post(ctx context.Context, ep endpoint, profile routing.RouteProfile, body []byte) ([]byte, error) {
	if ep.limiter != nil && !ep.limiter.Allow() {
		rerr := &routing.Error{
			Provider: ProviderName,
			Code:     "QUOTA_GUARD",
			Message:  "local request quota for routing provider exhausted",
			Err:      routing.ErrRateLimitExceeded,
		}
		c.logger.Warn().Str("endpoint", ep.path).Msg("ORS request skipped by quota guard")
		c.recordFailure(ep.name, rerr)
		return nil, rerr
	}

	url := fmt.Sprintf("%s/v2/%s/%s", c.baseURL, ep.path, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := ep.doer.Do(httpReq)
	if err != nil {
		c.recordRequest(ep.path, start, err)
		rerr := &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			rerr.Code = "CIRCUIT_OPEN"
			rerr.Message = "routing provider circuit is open"
		}
		c.recordFailure(ep.name, fmt.Errorf("%s: %w", rerr.Message, err))
		return nil, rerr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordRequest(ep.path, start, err)
		c.recordFailure(ep.name, err)
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		rerr := statusError(resp.StatusCode, respBody)
		c.recordRequest(ep.path, start, rerr)
		c.recordFailure(ep.name, rerr)
		return nil, rerr
	}

	c.recordRequest(ep.path, start, nil)
	return respBody, nil
}

// statusError classifies a non-200 answer. The ORS message is kept when the
// body carries one; gateways in front of ORS often send plain text.
func statusError(status int, body []byte) *routing.Error {
	var payload orsErrorResponse
	_ = json.Unmarshal(body, &payload) //nolint:errcheck // zero value on non-JSON bodies
	detail := payload.Error.Message
	if detail == "" {
		detail = fmt.Sprintf("routing provider returned status %d", status)
	}

	fail := func(code, message string, class error) *routing.Error {
		return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: class}
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fail("RATE_LIMIT", "API rate limit exceeded", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fail("FORBIDDEN", "API access denied, check the ORS API key", routing.ErrProviderUnavailable)
	case status == http.StatusNotFound:
		return fail("NO_ROUTE", routing.ErrNoRouteFound.Error(), routing.ErrNoRouteFound)
	case status == http.StatusBadRequest && unroutable(payload.Error.Code):
		return fail("NO_ROUTE", detail, routing.ErrNoRouteFound)
	case status == http.StatusBadRequest:
		return fail("BAD_REQUEST", detail, routing.ErrInvalidCoordinates)
	case status >= http.StatusInternalServerError:
		return fail(fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable", routing.ErrProviderUnavailable)
	default:
		return fail(fmt.Sprintf("HTTP_%d", status), detail, routing.ErrProviderUnavailable)
	}
}

// toDirectionsResponse requires a summary and geometry on every route.
func (c *Client) toDirectionsResponse(resp *directionsResponse) (*routing.DirectionsResponse, error) {
	routes := make([]routing.Route, 0, len(resp.Routes))
	for i := range resp.Routes {
		orsRoute := &resp.Routes[i]
		if orsRoute.Summary == nil {
			return nil, c.malformed(DirectionsClientName, "MISSING_SUMMARY", "route has no summary")
		}
		if orsRoute.Geometry == "" {
			return nil, c.malformed(DirectionsClientName, "MISSING_GEOMETRY", "route has no geometry")
		}

		route := routing.Route{
			GeometryPolyline: orsRoute.Geometry,
			DistanceMeters:   int(math.Round(orsRoute.Summary.Distance)),
			DurationSeconds:  int(math.Round(orsRoute.Summary.Duration)),
		}

		if b := orsRoute.BBox; len(b) >= 4 {
			route.BoundingBox = &routing.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
		}

		for _, seg := range orsRoute.Segments {
			route.Segments = append(route.Segments, routing.Segment{
				DistanceMeters:  int(math.Round(seg.Distance)),
				DurationSeconds: int(math.Round(seg.Duration)),
			})
		}

		routes = append(routes, route)
	}
	return &routing.DirectionsResponse{Routes: routes, Provider: ProviderName}, nil
}

func (c *Client) malformed(clientName, code, message string) error {
	err := &routing.Error{
		Provider: ProviderName,
		Code:     code,
		Message:  message,
		Err:      routing.ErrMalformedResponse,
	}
	c.recordFailure(clientName, err)
	return err
}

func (c *Client) profileFor(p routing.RouteProfile) routing.RouteProfile {
	if p == "" {
		return c.profile
	}
	return p
}

func (c *Client) recordRequest(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordRequest(ProviderName, operation, time.Since(start), err)
	}
}

func (c *Client) recordSuccess(clientName string) {
	if c.registry != nil {
		c.registry.RecordSuccess(clientName)
	}
}

func (c *Client) recordFailure(clientName string, err error) {
	if c.registry != nil {
		c.registry.RecordFailure(clientName, err)
	}
}

// toLonLat validates points and flips them into the GeoJSON [lon, lat]
// order ORS expects.
func toLonLat(points []routing.Coordinate) ([][]float64, error) {
	out := make([][]float64, 0, len(points))
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_COORDINATE",
				Message:  fmt.Sprintf("invalid coordinate at index %d: %v", i, err),
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		out = append(out, []float64{p.Lon, p.Lat})
	}
	return out, nil
}

// toFloatMatrix checks an n×n matrix of finite, non-negative, non-null values.
func toFloatMatrix(raw [][]*float64, n int) ([][]float64, error) {
	if len(raw) != n {
		return nil, fmt.Errorf("expected %d rows, got %d", n, len(raw))
	}
	out := make([][]float64, n)
	for i, row := range raw {
		if len(row) != n {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i, n, len(row))
		}
		out[i] = make([]float64, n)
		for j, v := range row {
			if v == nil {
				return nil, fmt.Errorf("no value between locations %d and %d", i, j)
			}
			if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
				return nil, fmt.Errorf("invalid value %v between locations %d and %d", *v, i, j)
			}
			out[i][j] = *v
		}
	}
	return out, nil
}
