package route

import (
	"io"
	"log/slog"
	"sync"

	"github.com/MrEthical07/authguard/session"
)

// Source is the part of the session store the guard reads.
type Source interface {
	CurrentSession() session.Session
	Subscribe(l session.Listener) func()
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger for decision changes.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// OnDecision registers fn to receive every changed decision, from Navigate
// and from session transitions alike.
func OnDecision(fn func(Decision)) Option {
	return func(g *Guard) {
		g.onDecision = fn
	}
}

// Guard tracks the displayed location of a navigation layer and re-evaluates
// it whenever the session changes.
type Guard struct {
	table      *Table
	source     Source
	logger     *slog.Logger
	onDecision func(Decision)

	mu          sync.Mutex
	current     Decision
	location    string
	returnTo    string
	seen        uint64
	closed      bool
	unsubscribe func()
}

// NewGuard returns a Guard subscribed to source. Close it to unsubscribe.
func NewGuard(table *Table, source Source, opts ...Option) *Guard {
	g := &Guard{
		table:  table,
		source: source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.unsubscribe = source.Subscribe(g.sessionChanged)
	return g
}

// Navigate evaluates a navigation to p against the current session.
//
// A protected route that redirects records p as the resume path. When a
// GuestOnly route later redirects an authenticated visitor, the resume path
// replaces the landing view as the target.
func (g *Guard) Navigate(p string) Decision {
	return g.apply(p, false, g.source.CurrentSession())
}

// Current returns the latest decision.
func (g *Guard) Current() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Location returns the path the navigation layer displays.
func (g *Guard) Location() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.location
}

// ResumePath returns the path recorded by the last redirect to login, or "".
func (g *Guard) ResumePath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.returnTo
}

// Close stops re-evaluation on session transitions.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	unsubscribe := g.unsubscribe
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (g *Guard) sessionChanged(s session.Session) {
	g.apply("", true, s)
}

// apply decides p against s. From a transition it re-evaluates the displayed
// location, read under the same lock that records the decision.
func (g *Guard) apply(p string, fromTransition bool, s session.Session) Decision {
	g.mu.Lock()
	if fromTransition {
		p = g.location
		if p == "" {
			g.mu.Unlock()
			return Decision{}
		}
	}
	if s.Version < g.seen {
		// A newer snapshot was already applied.
		d := g.current
		g.mu.Unlock()
		return d
	}
	g.seen = s.Version
	d := g.table.Evaluate(p, s)

	switch d.Kind {
	case Redirect:
		if d.ReturnTo != "" {
			g.returnTo = d.ReturnTo
		} else if g.returnTo != "" {
			d.Target = g.returnTo
			g.returnTo = ""
		}
		g.location = d.Target
	case Allow:
		g.location = d.Path
		if d.Path == g.returnTo {
			g.returnTo = ""
		}
	default:
		g.location = d.Path
	}

	changed := d != g.current
	g.current = d
	fn := g.onDecision
	closed := g.closed
	g.mu.Unlock()

	if changed {
		g.logger.Debug("route decision",
			slog.String("path", d.Path),
			slog.String("decision", d.Kind.String()),
			slog.String("target", d.Target),
			slog.String("session", s.Status.String()),
		)
		if fn != nil && !closed {
			fn(d)
		}
	}
	return d
}
