package authguard

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authguard/internal/audit"
	"github.com/MrEthical07/authguard/session"
)

// Credentials are passed verbatim to [Authenticator.Verify]. The Store never
// persists them.
type Credentials struct {
	Identifier string
	Password   string
	TOTPCode   string
}

// Grant is a successful verification result.
//
// ExpiresAt may be zero when the service only encodes the expiry inside a JWT
// token; the Store then reads the exp claim.
type Grant struct {
	User      session.Identity
	Token     string
	ExpiresAt time.Time
}

// Renewal is a successful token renewal.
type Renewal struct {
	Token     string
	ExpiresAt time.Time
}

// Authenticator is the external authentication service.
//
// Implementations report failures with (or wrapping) [ErrInvalidCredentials],
// [ErrTokenExpired], [ErrServiceUnavailable] or [ErrTimeout]. Any other error
// is treated as [ErrServiceUnavailable].
type Authenticator interface {
	Verify(ctx context.Context, creds Credentials) (Grant, error)
	Renew(ctx context.Context, token string) (Renewal, error)
}

// Listener observes session snapshots after every transition.
type Listener = session.Listener

// Transition describes one state change of the Store.
type Transition struct {
	From   session.Session
	To     session.Session
	Reason string
}

// Transition reasons.
const (
	ReasonHydrate        = "hydrate"
	ReasonLoginStarted   = "login_started"
	ReasonLoginSucceeded = "login_succeeded"
	ReasonLoginFailed    = "login_failed"
	ReasonLogout         = "logout"
	ReasonRefreshed      = "refreshed"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonTokenExpired   = "token_expired"
	ReasonCanceled       = "canceled"
)

// AuditEvent is a structured record of a session transition.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the Store's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events through a slog.Logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink] that logs events at info level.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
