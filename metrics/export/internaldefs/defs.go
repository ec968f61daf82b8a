package internaldefs

import (
	"github.com/MrEthical07/authguard"
)

// CounterDef names one Store counter for exporters.
type CounterDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// HistogramDef names one Store histogram for exporters.
type HistogramDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: authguard.MetricLoginSuccess, Name: "authguard_login_success_total", Help: "Logins that reached an authenticated session."},
	{ID: authguard.MetricLoginFailure, Name: "authguard_login_failure_total", Help: "Logins that fell back to anonymous."},
	{ID: authguard.MetricLoginInvalidCredentials, Name: "authguard_login_invalid_credentials_total", Help: "Logins rejected for bad credentials."},
	{ID: authguard.MetricRefreshSuccess, Name: "authguard_refresh_success_total", Help: "Successful token renewals."},
	{ID: authguard.MetricRefreshFailure, Name: "authguard_refresh_failure_total", Help: "Failed token renewals."},
	{ID: authguard.MetricLogout, Name: "authguard_logout_total", Help: "Logouts that cleared a session."},
	{ID: authguard.MetricHydrateAuthenticated, Name: "authguard_hydrate_authenticated_total", Help: "Startups that restored a persisted session."},
	{ID: authguard.MetricHydrateAnonymous, Name: "authguard_hydrate_anonymous_total", Help: "Startups that resolved anonymous."},
	{ID: authguard.MetricSessionExpired, Name: "authguard_session_expired_total", Help: "Sessions moved to expired."},
	{ID: authguard.MetricConcurrentRejected, Name: "authguard_concurrent_rejected_total", Help: "Operations rejected while another was in flight."},
	{ID: authguard.MetricStaleDiscarded, Name: "authguard_stale_discarded_total", Help: "Operation results discarded as superseded."},
	{ID: authguard.MetricPersistenceFailure, Name: "authguard_persistence_failure_total", Help: "Failed session persistence calls."},
	{ID: authguard.MetricTransition, Name: "authguard_transitions_total", Help: "Published session transitions."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authguard.MetricAuthLatency, Name: "authguard_auth_latency_seconds", Help: "Authentication service round-trip latency."},
}

// HistogramBounds are the bucket upper bounds in seconds. The last bucket is +Inf.
var HistogramBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histograms.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
