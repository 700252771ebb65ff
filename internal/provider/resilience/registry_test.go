package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetroute/fleetroute/internal/provider/resilience"
)

func newRegisteredClient(t *testing.T, registry *resilience.Registry, name string) *resilience.Client {
	t.Helper()
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func TestRegistry_Register(t *testing.T) {
	registry := resilience.NewRegistry()
	client := newRegisteredClient(t, registry, "openrouteservice-matrix")

	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, "openrouteservice-matrix", client.Name())

	health, ok := registry.Health("openrouteservice-matrix")
	require.True(t, ok)
	assert.Equal(t, "openrouteservice-matrix", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.Up())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.Zero(t, health.Successes)
	assert.Zero(t, health.Failures)
}

func TestRegistry_RegisterAgainClearsHistory(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegisteredClient(t, registry, "openrouteservice-matrix")
	registry.RecordFailure("openrouteservice-matrix", assert.AnError)

	newRegisteredClient(t, registry, "openrouteservice-matrix")

	health, ok := registry.Health("openrouteservice-matrix")
	require.True(t, ok)
	assert.Equal(t, 1, registry.Len())
	assert.Zero(t, health.Failures)
	assert.Empty(t, health.LastError)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegisteredClient(t, registry, "openrouteservice-directions")

	registry.RecordSuccess("openrouteservice-directions")
	registry.RecordSuccess("openrouteservice-directions")
	registry.RecordFailure("openrouteservice-directions", assert.AnError)

	health, ok := registry.Health("openrouteservice-directions")
	require.True(t, ok)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
	assert.Equal(t, uint64(2), health.Successes)
	assert.Equal(t, uint64(1), health.Failures)
}

func TestRegistry_RecordFailureWithoutError(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegisteredClient(t, registry, "openrouteservice-matrix")

	registry.RecordFailure("openrouteservice-matrix", nil)

	health, _ := registry.Health("openrouteservice-matrix")
	assert.Equal(t, uint64(1), health.Failures)
	assert.Empty(t, health.LastError)
}

func TestRegistry_UnknownNames(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})

	_, ok := registry.Health("nonexistent")
	assert.False(t, ok)
	assert.Empty(t, registry.Snapshot())
}

func TestRegistry_SnapshotOrderedByName(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"openrouteservice-matrix", "openrouteservice-directions"} {
		newRegisteredClient(t, registry, name)
	}

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "openrouteservice-directions", snapshot[0].Name)
	assert.Equal(t, "openrouteservice-matrix", snapshot[1].Name)
}

func TestRegistry_SnapshotReflectsOpenCircuit(t *testing.T) {
	registry := resilience.NewRegistry()

	cbConfig := resilience.DefaultCircuitBreakerConfig("openrouteservice-matrix")
	cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 1
	}
	cfg := resilience.DefaultClientConfig("openrouteservice-matrix")
	cfg.CircuitBreaker = &cbConfig
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	newRegisteredClient(t, registry, "openrouteservice-directions")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)
	assert.True(t, snapshot[0].Up())
	assert.True(t, snapshot[1].Down())
}

func TestHealth_States(t *testing.T) {
	tests := []struct {
		state      gobreaker.State
		up         bool
		recovering bool
		down       bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := resilience.Health{CircuitState: tt.state}
			assert.Equal(t, tt.up, h.Up())
			assert.Equal(t, tt.recovering, h.Recovering())
			assert.Equal(t, tt.down, h.Down())
		})
	}
}
