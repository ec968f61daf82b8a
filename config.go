package authguard

import (
	"errors"
	"time"

	"github.com/MrEthical07/authguard/jwt"
)

// Config holds Store settings. Use [DefaultConfig] as a starting point; the
// zero value disables timeouts and automatic refresh.
type Config struct {
	Login   LoginConfig
	Refresh RefreshConfig
	Hydrate HydrateConfig
	Token   TokenConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
OPERATION CONFIG
====================================
*/

// LoginConfig bounds calls to [Authenticator.Verify].
type LoginConfig struct {
	Timeout time.Duration
}

// RefreshConfig controls token renewal.
type RefreshConfig struct {
	Timeout time.Duration
	// Auto renews the token Lead before it expires. Without Auto the session
	// moves to Expired when the token runs out.
	Auto bool
	Lead time.Duration
	// KeepOnTransientFailure keeps an unexpired session authenticated when
	// renewal fails with ErrServiceUnavailable or ErrTimeout.
	KeepOnTransientFailure bool
}

// HydrateConfig bounds the persistence lookup at startup.
type HydrateConfig struct {
	Timeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig describes how session tokens are read. Without a PublicKey (or
// HS256 secret) tokens are only inspected for their exp claim.
type TokenConfig struct {
	SigningMethod string // "ed25519" (default) or "hs256"
	PublicKey     []byte
	Secret        []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the transition audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended settings.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Login: LoginConfig{
			Timeout: 15 * time.Second,
		},
		Refresh: RefreshConfig{
			Timeout: 15 * time.Second,
			Auto:    true,
			Lead:    time.Minute,
		},
		Hydrate: HydrateConfig{
			Timeout: 5 * time.Second,
		},
		Token: TokenConfig{
			SigningMethod: string(jwt.MethodEd25519),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Login.Timeout < 0 {
		return errors.New("login timeout must be >= 0")
	}
	if c.Refresh.Timeout < 0 {
		return errors.New("refresh timeout must be >= 0")
	}
	if c.Refresh.Lead < 0 {
		return errors.New("refresh lead must be >= 0")
	}
	if c.Refresh.Auto && c.Refresh.Lead == 0 {
		return errors.New("auto refresh requires a positive lead")
	}
	if c.Hydrate.Timeout < 0 {
		return errors.New("hydrate timeout must be >= 0")
	}
	switch jwt.SigningMethod(c.Token.SigningMethod) {
	case "", jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return errors.New("unsupported token signing method")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway must be within [0, 2m]")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be > 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("latency histograms require metrics to be enabled")
	}
	return nil
}

func cloneConfig(in Config) Config {
	out := in
	out.Token.PublicKey = append([]byte(nil), in.Token.PublicKey...)
	out.Token.Secret = append([]byte(nil), in.Token.Secret...)
	return out
}

func (c TokenConfig) managerConfig() jwt.Config {
	cfg := jwt.Config{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		PublicKey:     c.PublicKey,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
	}
	if cfg.SigningMethod == jwt.MethodHS256 {
		cfg.PrivateKey = c.Secret
	}
	return cfg
}
