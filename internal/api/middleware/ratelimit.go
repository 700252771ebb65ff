package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// RateLimitConfig caps requests per client IP over a sliding window.
type RateLimitConfig struct {
	// Name labels the tier in the 429 detail.
	Name         string
	RequestLimit int
	WindowLength time.Duration
}

var (
	// PlanningRateLimit covers optimize and baseline. Each call may spend
	// routing provider quota and a full solver budget.
	PlanningRateLimit = RateLimitConfig{Name: "planning", RequestLimit: 30, WindowLength: time.Minute}

	// InsightsRateLimit covers explain and ask, which are pure computation
	// over a plan the client already holds.
	InsightsRateLimit = RateLimitConfig{Name: "insights", RequestLimit: 100, WindowLength: time.Minute}
)

// PerMinute returns base with its limit replaced by perMinute over one
// minute. A non-positive perMinute keeps base.
func PerMinute(base RateLimitConfig, perMinute int) RateLimitConfig {
	if perMinute <= 0 {
		return base
	}
	return RateLimitConfig{Name: base.Name, RequestLimit: perMinute, WindowLength: time.Minute}
}

// RateLimitByIP enforces cfg per client IP, resolving proxies through
// httprate.KeyByRealIP. Over the limit it answers a 429 problem with a
// Retry-After of one window, since httprate does not expose the reset time.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))
	detail := fmt.Sprintf("%s rate limit of %d requests per %s exceeded, retry after %ss",
		cfg.Name, cfg.RequestLimit, cfg.WindowLength, retryAfter)

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), detail)
			problem.Instance = r.URL.Path
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}
