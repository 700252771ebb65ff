package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fleetroute/fleetroute/internal/telemetry"

// Instrument names.
const (
	ProviderCallDuration = "fleetroute.provider.call.duration"
	ProviderCalls        = "fleetroute.provider.calls"
	ProviderFallbacks    = "fleetroute.provider.fallbacks"
	SolveDuration        = "fleetroute.solver.duration"
	Solves               = "fleetroute.solver.runs"
	SolveImprovements    = "fleetroute.solver.improvements"
)

var (
	keyProvider  = attribute.Key("fleetroute.provider")
	keyOperation = attribute.Key("fleetroute.provider.operation")
	keyErrorType = attribute.Key("error.type")
	keyOutcome   = attribute.Key("fleetroute.solver.outcome")
	keyCustomers = attribute.Key("fleetroute.solver.customers")
)

// ProviderMetrics counts routing provider calls and the estimates that
// replaced failed ones. A nil *ProviderMetrics records nothing.
type ProviderMetrics struct {
	duration  metric.Float64Histogram
	calls     metric.Int64Counter
	fallbacks metric.Int64Counter
}

func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)
	var m ProviderMetrics
	var err error

	if m.duration, err = meter.Float64Histogram(ProviderCallDuration,
		metric.WithDescription("Routing provider round trip including retries"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.calls, err = meter.Int64Counter(ProviderCalls,
		metric.WithDescription("Routing provider calls by operation and error type"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter(ProviderFallbacks,
		metric.WithDescription("Synthetic estimates served in place of a provider answer"),
		metric.WithUnit("{fallback}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordRequest records one provider call of operation ("matrix" or
// "directions") and how it ended.
func (m *ProviderMetrics) RecordRequest(provider, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{keyProvider.String(provider), keyOperation.String(operation)}
	if err != nil {
		attrs = append(attrs, keyErrorType.String(errorType(err)))
	}
	set := metric.WithAttributes(attrs...)
	// The caller's context may already be cancelled.
	ctx := context.Background()
	m.duration.Record(ctx, elapsed.Seconds(), set)
	m.calls.Add(ctx, 1, set)
}

// RecordFallback records that operation was answered with an estimate.
func (m *ProviderMetrics) RecordFallback(operation string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(context.Background(), 1, metric.WithAttributes(keyOperation.String(operation)))
}

// errorType is "timeout" or "canceled" for context errors and "_OTHER"
// for anything else.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "_OTHER"
	}
}

// OptimizerMetrics records solver runs. A nil *OptimizerMetrics records
// nothing.
type OptimizerMetrics struct {
	duration     metric.Float64Histogram
	runs         metric.Int64Counter
	improvements metric.Int64Histogram
}

func NewOptimizerMetrics() (*OptimizerMetrics, error) {
	meter := otel.Meter(meterName)
	var m OptimizerMetrics
	var err error

	if m.duration, err = meter.Float64Histogram(SolveDuration,
		metric.WithDescription("Wall time of one construction plus local search run"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter(Solves,
		metric.WithDescription("Solver runs by outcome"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, err
	}
	if m.improvements, err = meter.Int64Histogram(SolveImprovements,
		metric.WithDescription("Improving local search moves applied per run"),
		metric.WithUnit("{move}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordSolve records one run. outcome is "ok", "infeasible", "invalid" or
// "error".
func (m *OptimizerMetrics) RecordSolve(outcome string, customers int, elapsed time.Duration, improvements int) {
	if m == nil {
		return
	}
	set := metric.WithAttributes(
		keyOutcome.String(outcome),
		keyCustomers.Int(customers),
	)
	ctx := context.Background()
	m.duration.Record(ctx, elapsed.Seconds(), set)
	m.runs.Add(ctx, 1, set)
	m.improvements.Record(ctx, int64(improvements), set)
}
