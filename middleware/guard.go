package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MrEthical07/authguard/route"
	"github.com/MrEthical07/authguard/session"
)

type sessionContextKey struct{}

type decisionContextKey struct{}

// SessionFromContext returns the snapshot the request was admitted with.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(session.Session)
	return s, ok
}

// DecisionFromContext returns the route decision that admitted the request.
func DecisionFromContext(ctx context.Context) (route.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(route.Decision)
	return d, ok
}

// SessionSource is the read side of the session store.
type SessionSource interface {
	CurrentSession() session.Session
}

// GuardOption configures Guard.
type GuardOption func(*guardConfig)

type guardConfig struct {
	returnParam string
	retryAfter  int
	notFound    http.Handler
	logger      *slog.Logger
}

// WithReturnParam names the query parameter carrying the resume path on
// redirects. Default "return_to".
func WithReturnParam(name string) GuardOption {
	return func(c *guardConfig) { c.returnParam = name }
}

// WithRetryAfter sets the Retry-After seconds sent while the session is
// still resolving. Default 1.
func WithRetryAfter(seconds int) GuardOption {
	return func(c *guardConfig) { c.retryAfter = seconds }
}

// WithNotFound sets the handler for paths no route matches. Default
// http.NotFoundHandler.
func WithNotFound(h http.Handler) GuardOption {
	return func(c *guardConfig) { c.notFound = h }
}

// WithLogger sets the logger for denied requests.
func WithLogger(l *slog.Logger) GuardOption {
	return func(c *guardConfig) { c.logger = l }
}

// Guard returns middleware that evaluates each request path against table.
//
//   - Allow: the request continues with the session in its context.
//   - Redirect: 303 See Other to the target, with the resume path appended.
//   - Defer: 503 with Retry-After while the session is Unknown or Authenticating.
//   - NotFound: the not-found handler.
func Guard(table *route.Table, source SessionSource, opts ...GuardOption) func(http.Handler) http.Handler {
	cfg := guardConfig{
		returnParam: "return_to",
		retryAfter:  1,
		notFound:    http.NotFoundHandler(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if table == nil || source == nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			snap := source.CurrentSession()
			d := table.Evaluate(r.URL.Path, snap)

			switch d.Kind {
			case route.Allow:
				ctx := context.WithValue(r.Context(), sessionContextKey{}, snap)
				ctx = context.WithValue(ctx, decisionContextKey{}, d)
				next.ServeHTTP(w, r.WithContext(ctx))
			case route.Redirect:
				cfg.logger.Debug("route redirect",
					slog.String("path", d.Path),
					slog.String("target", d.Target),
					slog.String("session", snap.Status.String()),
				)
				http.Redirect(w, r, redirectURL(d, cfg.returnParam), http.StatusSeeOther)
			case route.Defer:
				w.Header().Set("Retry-After", strconv.Itoa(cfg.retryAfter))
				http.Error(w, "session is loading", http.StatusServiceUnavailable)
			default:
				cfg.notFound.ServeHTTP(w, r)
			}
		})
	}
}

func redirectURL(d route.Decision, param string) string {
	if d.ReturnTo == "" || param == "" {
		return d.Target
	}
	q := url.Values{}
	q.Set(param, d.ReturnTo)
	return d.Target + "?" + q.Encode()
}
