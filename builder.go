package authguard

import (
	"context"
	"errors"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/authguard/internal/audit"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/session"
	"github.com/google/uuid"
)

// Builder assembles a [Store].
//
// Builder instances are intended to be configured during initialization and
// then used once; Build fails on a second call.
type Builder struct {
	config Config

	authenticator Authenticator
	persistence   session.Persistence
	tokens        *jwt.Manager
	clock         Clock
	logger        *slog.Logger
	auditSink     AuditSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAuthenticator sets the authentication service. Required.
func (b *Builder) WithAuthenticator(a Authenticator) *Builder {
	b.authenticator = a
	return b
}

// WithPersistence sets where the session survives restarts. Without it the
// session lives in memory only.
func (b *Builder) WithPersistence(p session.Persistence) *Builder {
	b.persistence = p
	return b
}

// WithTokenManager overrides the token reader built from Config.Token.
func (b *Builder) WithTokenManager(m *jwt.Manager) *Builder {
	b.tokens = m
	return b
}

// WithClock sets the time source used for expiry scheduling.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger. Without it nothing is logged.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink for transition audit events. Events are only
// emitted when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters. Disabling metrics also
// disables latency histograms.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	if !enabled {
		b.config.Metrics.EnableLatencyHistograms = false
	}
	return b
}

// WithLatencyHistograms toggles the authentication latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Store in the Unknown
// status. Call [Store.Hydrate] next.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.authenticator == nil {
		return nil, errors.New("authenticator required")
	}

	tokens := b.tokens
	if tokens == nil {
		jm, err := jwt.NewManager(cfg.Token.managerConfig())
		if err != nil {
			return nil, err
		}
		tokens = jm
	}

	persistence := b.persistence
	if persistence == nil {
		persistence = session.NopPersistence{}
	}
	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Store{
		config:     cfg,
		auth:       b.authenticator,
		persist:    persistence,
		tokens:     tokens,
		clock:      clock,
		logger:     logger,
		metrics:    NewMetrics(cfg.Metrics),
		instanceID: uuid.NewString(),
		current:    session.Session{Status: session.StatusUnknown},
	}
	s.current.InstanceID = s.instanceID
	s.subs.logger = logger

	s.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	if s.audit != nil {
		s.subs.add(s.emitAudit)
	}

	b.built = true
	return s, nil
}

func (s *Store) emitAudit(t Transition) {
	event := AuditEvent{
		Timestamp:  s.clock.Now(),
		EventType:  "session." + t.Reason,
		InstanceID: t.To.InstanceID,
		From:       t.From.Status.String(),
		To:         t.To.Status.String(),
		Reason:     t.Reason,
		Version:    t.To.Version,
	}
	switch {
	case t.To.User != nil:
		event.UserID = t.To.User.ID
	case t.To.Previous != nil:
		event.UserID = t.To.Previous.ID
	case t.From.User != nil:
		event.UserID = t.From.User.ID
	}
	s.audit.Emit(context.Background(), event)
}
