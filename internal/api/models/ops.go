package models

// Health is the liveness and readiness payload.
type Health struct {
	Status    HealthStatus `json:"status"`
	Time      Timestamp    `json:"time"`
	Version   string       `json:"version,omitempty"`
	BuildTime string       `json:"buildTime,omitempty"`

	// Providers lists the routing endpoints wired in. Empty means every
	// request runs on straight-line estimates.
	Providers []string `json:"providers,omitempty"`
}

// OpsStatus reports routing provider state and the degradations it causes.
type OpsStatus struct {
	Status           HealthStatus     `json:"status"`
	Time             Timestamp        `json:"time"`
	Providers        []ProviderStatus `json:"providers"`
	DegradationFlags []string         `json:"degradationFlags"`
}

// ProviderStatus is one routing endpoint's circuit and call history.
type ProviderStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	Circuit       string       `json:"circuit"`
	Successes     uint64       `json:"successes"`
	Failures      uint64       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}
