package route

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidSpec is returned by NewTable for malformed route metadata.
var ErrInvalidSpec = errors.New("invalid route spec")

// Spec is the static metadata of one route.
type Spec struct {
	// Path is an absolute path or a glob pattern.
	Path         string `yaml:"path"`
	RequiresAuth bool   `yaml:"requires_auth"`
	// RedirectOnFail is where unauthenticated visitors are sent. Required when
	// RequiresAuth is set.
	RedirectOnFail string `yaml:"redirect_on_fail,omitempty"`
	// GuestOnly routes (a login view) send authenticated visitors to the
	// table's landing path.
	GuestOnly bool `yaml:"guest_only,omitempty"`
}

type compiledSpec struct {
	spec Spec
	glob glob.Glob
}

// Table is an immutable set of route specs.
type Table struct {
	landing  string
	specs    []Spec
	exact    map[string]Spec
	patterns []compiledSpec
}

// NewTable validates specs and builds a Table. landing is where GuestOnly
// routes send authenticated visitors; it must name a route that is not
// GuestOnly and is required when any spec is GuestOnly.
func NewTable(landing string, specs ...Spec) (*Table, error) {
	t := &Table{
		specs: make([]Spec, 0, len(specs)),
		exact: make(map[string]Spec, len(specs)),
	}
	seen := make(map[string]struct{}, len(specs))
	hasGuestOnly := false

	for i, s := range specs {
		if s.Path == "" || !strings.HasPrefix(s.Path, "/") {
			return nil, fmt.Errorf("%w: route %d: path %q must be absolute", ErrInvalidSpec, i, s.Path)
		}
		if s.RequiresAuth && s.GuestOnly {
			return nil, fmt.Errorf("%w: route %q cannot both require auth and be guest only", ErrInvalidSpec, s.Path)
		}
		if s.RequiresAuth {
			if s.RedirectOnFail == "" || !strings.HasPrefix(s.RedirectOnFail, "/") {
				return nil, fmt.Errorf("%w: route %q requires an absolute redirect_on_fail", ErrInvalidSpec, s.Path)
			}
			s.RedirectOnFail = Normalize(s.RedirectOnFail)
		}
		hasGuestOnly = hasGuestOnly || s.GuestOnly

		if isPattern(s.Path) {
			if _, dup := seen[s.Path]; dup {
				return nil, fmt.Errorf("%w: duplicate route %q", ErrInvalidSpec, s.Path)
			}
			g, err := glob.Compile(s.Path, '/')
			if err != nil {
				return nil, fmt.Errorf("%w: route %q: %v", ErrInvalidSpec, s.Path, err)
			}
			seen[s.Path] = struct{}{}
			t.patterns = append(t.patterns, compiledSpec{spec: s, glob: g})
		} else {
			s.Path = Normalize(s.Path)
			if _, dup := seen[s.Path]; dup {
				return nil, fmt.Errorf("%w: duplicate route %q", ErrInvalidSpec, s.Path)
			}
			seen[s.Path] = struct{}{}
			t.exact[s.Path] = s
		}
		t.specs = append(t.specs, s)
	}

	// A redirect target that itself requires auth would loop.
	for _, s := range t.specs {
		if !s.RequiresAuth {
			continue
		}
		target, ok := t.Lookup(s.RedirectOnFail)
		if !ok {
			return nil, fmt.Errorf("%w: route %q redirects to unknown route %q", ErrInvalidSpec, s.Path, s.RedirectOnFail)
		}
		if target.RequiresAuth {
			return nil, fmt.Errorf("%w: route %q redirects to protected route %q", ErrInvalidSpec, s.Path, s.RedirectOnFail)
		}
	}

	if landing != "" {
		landing = Normalize(landing)
		target, ok := t.Lookup(landing)
		if !ok {
			return nil, fmt.Errorf("%w: landing %q is not a known route", ErrInvalidSpec, landing)
		}
		if target.GuestOnly {
			return nil, fmt.Errorf("%w: landing %q is guest only", ErrInvalidSpec, landing)
		}
	} else if hasGuestOnly {
		return nil, fmt.Errorf("%w: guest only routes need a landing path", ErrInvalidSpec)
	}
	t.landing = landing

	return t, nil
}

// MustTable is NewTable that panics on error, for static tables.
func MustTable(landing string, specs ...Spec) *Table {
	t, err := NewTable(landing, specs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the spec governing p.
func (t *Table) Lookup(p string) (Spec, bool) {
	if t == nil {
		return Spec{}, false
	}
	p = Normalize(p)
	if s, ok := t.exact[p]; ok {
		return s, true
	}
	for _, c := range t.patterns {
		if c.glob.Match(p) {
			return c.spec, true
		}
	}
	return Spec{}, false
}

// Landing returns the default authenticated view.
func (t *Table) Landing() string {
	if t == nil {
		return ""
	}
	return t.landing
}

// Specs returns the specs in declaration order.
func (t *Table) Specs() []Spec {
	if t == nil {
		return nil
	}
	return append([]Spec(nil), t.specs...)
}

// Normalize strips the query and fragment, cleans the path and removes any
// trailing slash. The empty path normalizes to "/".
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func isPattern(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
