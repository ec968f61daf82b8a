package session

import "time"

// Status is the authentication state of the running process.
type Status uint8

const (
	// StatusUnknown is the interim state before hydration resolves.
	StatusUnknown Status = iota
	// StatusAnonymous means no user is signed in.
	StatusAnonymous
	// StatusAuthenticating means a login is in flight.
	StatusAuthenticating
	// StatusAuthenticated means User and Token are present.
	StatusAuthenticated
	// StatusExpired means the token was rejected or ran out; gated views treat
	// it like StatusAnonymous.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Pending reports whether the status is an interim state whose outcome is not
// known yet.
func (s Status) Pending() bool {
	return s == StatusUnknown || s == StatusAuthenticating
}

// Identity describes the signed-in user as returned by the authentication
// service.
type Identity struct {
	ID    string
	Name  string
	Email string
	Roles []string
}

// Clone returns a deep copy so snapshots never share the Roles backing array.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.Roles != nil {
		out.Roles = append([]string(nil), i.Roles...)
	}
	return &out
}

// Session is a point-in-time snapshot of the authentication state.
//
// User and Token are both set exactly when Status is StatusAuthenticated.
// Previous carries the identity that was signed in when the session expired so
// views can say whose session ran out; it is set only in StatusExpired.
type Session struct {
	Status    Status
	User      *Identity
	Token     string
	ExpiresAt time.Time

	Previous   *Identity
	Version    uint64
	InstanceID string
}

// Listener observes session snapshots after every transition.
type Listener func(Session)

// Anonymous returns an anonymous snapshot.
func Anonymous() Session {
	return Session{Status: StatusAnonymous}
}

// Authenticated reports whether the snapshot grants access to gated views.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != "" && s.User != nil
}

// ExpiredAt reports whether the token is past its expiry at now. A zero
// ExpiresAt never expires.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Consistent reports whether the snapshot satisfies the user/token invariant.
func (s Session) Consistent() bool {
	hasUser := s.User != nil
	hasToken := s.Token != ""
	if hasUser != hasToken {
		return false
	}
	if s.Status == StatusAuthenticated {
		return hasUser
	}
	if s.Previous != nil && s.Status != StatusExpired {
		return false
	}
	return !hasUser
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	s.Previous = s.Previous.Clone()
	return s
}

// Record is the persisted form of an authenticated session.
type Record struct {
	User      Identity
	Token     string
	ExpiresAt time.Time
	SavedAt   time.Time
}

// Usable reports whether the record can restore an authenticated session at now.
func (r *Record) Usable(now time.Time) bool {
	if r == nil || r.Token == "" || r.User.ID == "" {
		return false
	}
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}
