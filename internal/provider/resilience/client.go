package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open or is already probing.
var ErrCircuitOpen = errors.New("routing provider circuit is open")

// ServerError marks a 5xx answer so the breaker counts it as a failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// ClientConfig configures one provider endpoint client.
type ClientConfig struct {
	// Name keys the breaker and the registry entry.
	Name string

	// Timeout bounds each HTTP call including reading the body.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a failure. Provider
	// clients leave it at zero and fall back to estimates instead.
	MaxRetries uint64

	// InitialInterval and MaxInterval shape the exponential backoff between
	// retries.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker defaults to DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client on construction.
	Registry *Registry
}

const (
	defaultTimeout         = 10 * time.Second
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// DefaultClientConfig is a 10s timeout behind the default breaker, with no
// retries.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &breaker,
	}
}

// Client sends provider requests through a circuit breaker. It satisfies the
// Do-only HTTP client interface the provider packages accept.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]

	retries         uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewClient builds a client from cfg, filling unset durations with defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	breakerCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		breakerCfg = *cfg.CircuitBreaker
	}

	c := &Client{
		name:            cfg.Name,
		http:            &http.Client{Timeout: cfg.Timeout},
		breaker:         NewCircuitBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type parameter
		retries:         cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the endpoint name the client was built with.
func (c *Client) Name() string {
	return c.name
}

// BreakerState returns the breaker's current state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the breaker's counts for the current generation.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req, bounded by its context and the client timeout. 4xx answers
// come back untouched. A 5xx that survives all attempts is also returned with
// a nil error so the caller can read the provider's error body. An open
// breaker yields ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// last5xx holds the most recent failed answer. Earlier ones are closed.
	var last5xx *http.Response
	keep := func(resp *http.Response) {
		if last5xx != nil {
			last5xx.Body.Close()
		}
		last5xx = resp
	}

	attempt := func() (*http.Response, error) {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.send(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(ErrCircuitOpen)
		}
		if err != nil {
			if resp != nil {
				keep(resp)
			}
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.RetryWithData(attempt, backoff.WithContext(c.backOff(), ctx))
	if err == nil {
		keep(nil)
		return resp, nil
	}
	if last5xx != nil && ctx.Err() == nil {
		return last5xx, nil
	}
	keep(nil)
	return nil, err
}

func (c *Client) backOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxInterval = c.maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithMaxRetries(exp, c.retries)
}

// send makes one attempt. The request body is rewound from GetBody so a
// retried POST carries its payload again.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	attemptReq := req.Clone(ctx)
	if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		attemptReq.Body = body
	}

	resp, err := c.http.Do(attemptReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, &ServerError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}
