package authtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/session"
)

// Secret is the HS256 key tokens from [Authenticator] are signed with.
var Secret = []byte("authtest-signing-secret-0123456789")

type account struct {
	password string
	user     session.Identity
}

// Authenticator is an in-memory [authguard.Authenticator] with scripted
// failures and a gate for holding calls in flight.
type Authenticator struct {
	tokens *jwt.Manager
	clock  authguard.Clock

	mu         sync.Mutex
	users      map[string]account
	revoked    map[string]bool
	verifyErrs []error
	renewErrs  []error
	omitExpiry bool
	gate       chan struct{}
	verifies   int
	renews     int

	entered chan string
}

// NewAuthenticator returns an Authenticator issuing tokens valid for ttl
// according to clock. A nil clock uses the system time.
func NewAuthenticator(clock authguard.Clock, ttl time.Duration) *Authenticator {
	if clock == nil {
		clock = NewClock(time.Now())
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           ttl,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    Secret,
		Issuer:        "authtest",
	})
	if err != nil {
		panic(fmt.Sprintf("authtest: %v", err))
	}
	return &Authenticator{
		tokens:  tokens,
		clock:   clock,
		users:   map[string]account{},
		revoked: map[string]bool{},
		entered: make(chan string, 64),
	}
}

// AddUser registers an account.
func (a *Authenticator) AddUser(identifier, password string, user session.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[identifier] = account{password: password, user: user}
}

// FailVerify queues err as the result of the next Verify call.
func (a *Authenticator) FailVerify(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifyErrs = append(a.verifyErrs, err)
}

// FailRenew queues err as the result of the next Renew call.
func (a *Authenticator) FailRenew(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renewErrs = append(a.renewErrs, err)
}

// Revoke makes Renew refuse token.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[token] = true
}

// OmitExpiry leaves Grant.ExpiresAt and Renewal.ExpiresAt zero so callers must
// read the exp claim.
func (a *Authenticator) OmitExpiry(omit bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.omitExpiry = omit
}

// Hold blocks every subsequent call until the returned release function runs
// or the call's context ends.
func (a *Authenticator) Hold() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.gate == gate {
				a.gate = nil
			}
			a.mu.Unlock()
			close(gate)
		})
	}
}

// Entered receives "verify" or "renew" when a call starts.
func (a *Authenticator) Entered() <-chan string {
	return a.entered
}

// Calls reports how many Verify and Renew calls were made.
func (a *Authenticator) Calls() (verify, renew int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verifies, a.renews
}

func (a *Authenticator) Verify(ctx context.Context, creds authguard.Credentials) (authguard.Grant, error) {
	a.mu.Lock()
	a.verifies++
	gate := a.gate
	var scripted error
	if len(a.verifyErrs) > 0 {
		scripted, a.verifyErrs = a.verifyErrs[0], a.verifyErrs[1:]
	}
	acct, known := a.users[creds.Identifier]
	omit := a.omitExpiry
	a.mu.Unlock()

	if err := a.wait(ctx, gate, "verify"); err != nil {
		return authguard.Grant{}, err
	}
	if scripted != nil {
		return authguard.Grant{}, scripted
	}
	if !known || acct.password != creds.Password {
		return authguard.Grant{}, authguard.ErrInvalidCredentials
	}

	token, expiresAt, err := a.tokens.Issue(acct.user, a.clock.Now())
	if err != nil {
		return authguard.Grant{}, err
	}
	if omit {
		expiresAt = time.Time{}
	}
	user := acct.user
	return authguard.Grant{User: *user.Clone(), Token: token, ExpiresAt: expiresAt}, nil
}

func (a *Authenticator) Renew(ctx context.Context, token string) (authguard.Renewal, error) {
	a.mu.Lock()
	a.renews++
	gate := a.gate
	var scripted error
	if len(a.renewErrs) > 0 {
		scripted, a.renewErrs = a.renewErrs[0], a.renewErrs[1:]
	}
	revoked := a.revoked[token]
	omit := a.omitExpiry
	a.mu.Unlock()

	if err := a.wait(ctx, gate, "renew"); err != nil {
		return authguard.Renewal{}, err
	}
	if scripted != nil {
		return authguard.Renewal{}, scripted
	}
	if revoked {
		return authguard.Renewal{}, authguard.ErrTokenExpired
	}

	claims, err := a.tokens.Inspect(token)
	if err != nil {
		return authguard.Renewal{}, authguard.ErrTokenExpired
	}
	now := a.clock.Now()
	if !now.Before(claims.Expiry()) {
		return authguard.Renewal{}, authguard.ErrTokenExpired
	}

	next, expiresAt, err := a.tokens.Issue(claims.Identity(), now)
	if err != nil {
		return authguard.Renewal{}, err
	}
	if omit {
		expiresAt = time.Time{}
	}
	return authguard.Renewal{Token: next, ExpiresAt: expiresAt}, nil
}

func (a *Authenticator) wait(ctx context.Context, gate chan struct{}, op string) error {
	select {
	case a.entered <- op:
	default:
	}
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
