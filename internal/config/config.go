// Package config loads service configuration from an optional .env file, an
// optional YAML file and environment variables, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	ORS       ORSConfig       `yaml:"ors"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              string        `yaml:"port"`
	Environment       string        `yaml:"environment"`
	CORSAllowedOrigin string        `yaml:"cors_allowed_origin"`
	RequireTLS        bool          `yaml:"require_tls"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// Per-IP requests per minute for the planning (optimize, baseline)
	// and insights (explain, ask) routes.
	PlanningRateLimit int `yaml:"planning_rate_limit"`
	InsightsRateLimit int `yaml:"insights_rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint"`
	SampleRatio       float64 `yaml:"sample_ratio"`
	PrometheusEnabled bool    `yaml:"prometheus_enabled"`
}

// ORSConfig configures the OpenRouteService client.
type ORSConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Profile           string        `yaml:"profile"`
	MatrixTimeout     time.Duration `yaml:"matrix_timeout"`
	DirectionsTimeout time.Duration `yaml:"directions_timeout"`

	// RequestsPerMinute caps outbound calls per endpoint. Zero disables
	// the cap.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// OptimizerConfig configures request limits, fallbacks and the solver.
type OptimizerConfig struct {
	FallbackSpeed     float64       `yaml:"fallback_speed"`
	DefaultCapacity   int           `yaml:"default_capacity"`
	MaxCustomers      int           `yaml:"max_customers"`
	MaxIterations     int           `yaml:"max_iterations"`
	TimeBudget        time.Duration `yaml:"time_budget"`
	EnrichConcurrency int           `yaml:"enrich_concurrency"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              "8080",
			Environment:       "development",
			CORSAllowedOrigin: "*",
			ShutdownTimeout:   30 * time.Second,
			PlanningRateLimit: 30,
			InsightsRateLimit: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		ORS: ORSConfig{
			BaseURL:           "https://api.openrouteservice.org",
			Profile:           "driving-car",
			MatrixTimeout:     30 * time.Second,
			DirectionsTimeout: 20 * time.Second,
			RequestsPerMinute: 40,
		},
		Optimizer: OptimizerConfig{
			FallbackSpeed:     15.0,
			DefaultCapacity:   40,
			MaxCustomers:      200,
			MaxIterations:     1000,
			TimeBudget:        2 * time.Second,
			EnrichConcurrency: 4,
		},
	}
}

// Load builds the configuration. envFiles are loaded with godotenv (".env"
// when none are given); missing files are skipped and variables already set
// in the environment win. CONFIG_FILE names an optional YAML file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	envString("APP_PORT", &c.Server.Port)
	envString("APP_ENV", &c.Server.Environment)
	envString("CORS_ALLOWED_ORIGIN", &c.Server.CORSAllowedOrigin)
	collect(envBool("REQUIRE_TLS", &c.Server.RequireTLS))
	collect(envDuration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout))
	collect(envInt("PLANNING_RATE_LIMIT", &c.Server.PlanningRateLimit))
	collect(envInt("INSIGHTS_RATE_LIMIT", &c.Server.InsightsRateLimit))

	envString("LOG_LEVEL", &c.Log.Level)

	collect(envBool("OTEL_ENABLED", &c.Telemetry.Enabled))
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	collect(envFloat("OTEL_SAMPLE_RATIO", &c.Telemetry.SampleRatio))
	collect(envBool("PROMETHEUS_ENABLED", &c.Telemetry.PrometheusEnabled))

	envString("ORS_API_KEY", &c.ORS.APIKey)
	envString("ORS_BASE_URL", &c.ORS.BaseURL)
	envString("ORS_PROFILE", &c.ORS.Profile)
	collect(envDuration("MATRIX_TIMEOUT", &c.ORS.MatrixTimeout))
	collect(envDuration("DIRECTIONS_TIMEOUT", &c.ORS.DirectionsTimeout))
	collect(envInt("ORS_REQUESTS_PER_MINUTE", &c.ORS.RequestsPerMinute))

	collect(envFloat("FALLBACK_SPEED", &c.Optimizer.FallbackSpeed))
	collect(envInt("DEFAULT_CAPACITY", &c.Optimizer.DefaultCapacity))
	collect(envInt("MAX_CUSTOMERS", &c.Optimizer.MaxCustomers))
	collect(envInt("SOLVER_MAX_ITERATIONS", &c.Optimizer.MaxIterations))
	collect(envDuration("SOLVER_TIME_BUDGET", &c.Optimizer.TimeBudget))
	collect(envInt("ENRICH_CONCURRENCY", &c.Optimizer.EnrichConcurrency))

	return errors.Join(errs...)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port must be set"))
	}
	if c.Optimizer.FallbackSpeed <= 0 {
		errs = append(errs, fmt.Errorf("fallback speed must be positive, got %v", c.Optimizer.FallbackSpeed))
	}
	if c.Optimizer.DefaultCapacity <= 0 {
		errs = append(errs, fmt.Errorf("default capacity must be positive, got %d", c.Optimizer.DefaultCapacity))
	}
	if c.Optimizer.MaxCustomers <= 0 {
		errs = append(errs, fmt.Errorf("max customers must be positive, got %d", c.Optimizer.MaxCustomers))
	}
	if c.Optimizer.TimeBudget <= 0 {
		errs = append(errs, fmt.Errorf("solver time budget must be positive, got %s", c.Optimizer.TimeBudget))
	}
	if c.Optimizer.EnrichConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("enrich concurrency must be positive, got %d", c.Optimizer.EnrichConcurrency))
	}
	if c.ORS.MatrixTimeout <= 0 || c.ORS.DirectionsTimeout <= 0 {
		errs = append(errs, errors.New("provider timeouts must be positive"))
	}
	if c.Server.PlanningRateLimit <= 0 || c.Server.InsightsRateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.ORS.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("ORS requests per minute must not be negative, got %d", c.ORS.RequestsPerMinute))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
