package route

import "github.com/MrEthical07/authguard/session"

// Kind classifies a navigation outcome.
type Kind uint8

const (
	// NotFound means no route matches the path.
	NotFound Kind = iota
	// Allow renders the requested view.
	Allow
	// Redirect sends the visitor to Decision.Target.
	Redirect
	// Defer renders nothing until the session resolves.
	Defer
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Defer:
		return "defer"
	default:
		return "not_found"
	}
}

// Decision is the outcome of evaluating one navigation.
type Decision struct {
	Kind Kind
	// Path is the normalized requested path.
	Path string
	// Target is set for Redirect.
	Target string
	// ReturnTo is the path to resume after login. It is set when a protected
	// route redirects an unauthenticated visitor.
	ReturnTo string
}

// Evaluate decides the navigation to requested for the session s. It has no
// side effects and never fails.
func (t *Table) Evaluate(requested string, s session.Session) Decision {
	p := Normalize(requested)
	spec, ok := t.Lookup(p)
	if !ok {
		return Decision{Kind: NotFound, Path: p}
	}

	if !spec.RequiresAuth {
		if spec.GuestOnly && s.Status == session.StatusAuthenticated && t.landing != "" {
			return Decision{Kind: Redirect, Path: p, Target: t.landing}
		}
		return Decision{Kind: Allow, Path: p}
	}

	switch s.Status {
	case session.StatusAuthenticated:
		return Decision{Kind: Allow, Path: p}
	case session.StatusAnonymous, session.StatusExpired:
		return Decision{Kind: Redirect, Path: p, Target: spec.RedirectOnFail, ReturnTo: p}
	default:
		return Decision{Kind: Defer, Path: p}
	}
}
