package authguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authguard/internal/audit"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/session"
)

type opKind uint8

const (
	opNone opKind = iota
	opHydrate
	opLogin
	opRefresh
)

func (k opKind) String() string {
	switch k {
	case opHydrate:
		return "hydrate"
	case opLogin:
		return "login"
	case opRefresh:
		return "refresh"
	default:
		return "none"
	}
}

// Store is the single source of truth for the process's authentication state.
//
// Build one Store per process with [Builder.Build] and pass it to every
// consumer. All methods are safe for concurrent use. Reads never wait on I/O;
// Hydrate, Login and Refresh block on their collaborator while the published
// snapshot stays in its interim state.
type Store struct {
	config     Config
	auth       Authenticator
	persist    session.Persistence
	tokens     *jwt.Manager
	clock      Clock
	logger     *slog.Logger
	metrics    *Metrics
	audit      *internalaudit.Dispatcher
	instanceID string

	// persistMu orders persistence writes with the transitions that cause
	// them. Lock order: persistMu, then mu.
	persistMu sync.Mutex

	mu       sync.Mutex
	current  session.Session
	ticket   uint64
	inflight opKind
	rollback session.Session
	timer    Timer
	closed   bool

	subs subscribers
}

// CurrentSession returns a copy of the present snapshot.
func (s *Store) CurrentSession() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// InstanceID identifies this Store in snapshots and audit events.
func (s *Store) InstanceID() string {
	return s.instanceID
}

// Subscribe registers l for every subsequent transition and returns a function
// that removes it. Listeners run in registration order after the Store released
// its locks, so they may call back into the Store. A mutating call returns only
// once every listener saw its transitions; while an earlier delivery is still
// running, the later caller waits for it.
func (s *Store) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	return s.subs.add(func(t Transition) { l(t.To) })
}

// SubscribeTransitions is Subscribe with the previous snapshot and reason.
func (s *Store) SubscribeTransitions(fn func(Transition)) func() {
	if fn == nil {
		return func() {}
	}
	return s.subs.add(fn)
}

// Token returns the current token for an outgoing protected request. A token
// past its expiry is never returned; the session is moved to Expired instead.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	cur := s.current
	expired := cur.Status == session.StatusAuthenticated && cur.ExpiredAt(s.clock.Now())
	s.mu.Unlock()

	if expired {
		s.expireIfDue(cur.Version)
		return "", ErrNotAuthenticated
	}
	if !cur.Authenticated() {
		return "", ErrNotAuthenticated
	}
	return cur.Token, nil
}

// Hydrate restores a persisted session. It resolves the Unknown status to
// Authenticated when a usable record is stored and to Anonymous otherwise;
// persistence failures are logged and resolve Anonymous. On a store that has
// already left Unknown it does nothing.
func (s *Store) Hydrate(ctx context.Context) (session.Session, error) {
	ctx = orBackground(ctx)

	s.mu.Lock()
	if s.closed {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, ErrStoreClosed
	}
	if s.current.Status != session.StatusUnknown {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, nil
	}
	if s.inflight != opNone {
		snap := s.current.Clone()
		s.mu.Unlock()
		s.metrics.Inc(MetricConcurrentRejected)
		return snap, ErrConcurrentOperation
	}
	ticket := s.beginLocked(opHydrate)
	s.mu.Unlock()

	loadCtx, cancel := withTimeout(ctx, s.config.Hydrate.Timeout)
	rec, loadErr := s.persist.Load(loadCtx)
	cancel()

	var restored *session.Session
	discardStored := false
	switch {
	case loadErr != nil:
		s.persistFailed("load", loadErr)
		discardStored = errors.Is(loadErr, session.ErrCorruptRecord) || errors.Is(loadErr, session.ErrUnsupportedSchema)
	case rec != nil:
		expiresAt, err := s.checkToken(rec.Token, rec.ExpiresAt)
		rec.ExpiresAt = expiresAt
		if err == nil && rec.Usable(s.clock.Now()) {
			user := rec.User
			restored = &session.Session{
				Status:    session.StatusAuthenticated,
				User:      user.Clone(),
				Token:     rec.Token,
				ExpiresAt: rec.ExpiresAt,
			}
		} else {
			discardStored = true
		}
	}

	s.persistMu.Lock()
	s.mu.Lock()
	if ticket != s.ticket {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return s.discard(opHydrate)
	}
	s.inflight = opNone

	var snap session.Session
	if restored != nil {
		snap = s.transitionLocked(*restored, ReasonHydrate)
		s.scheduleExpiryLocked(true)
		s.metrics.Inc(MetricHydrateAuthenticated)
	} else {
		snap = s.transitionLocked(session.Anonymous(), ReasonHydrate)
		s.metrics.Inc(MetricHydrateAnonymous)
	}
	s.mu.Unlock()

	if discardStored {
		if err := s.persist.Clear(context.WithoutCancel(ctx)); err != nil {
			s.persistFailed("clear", err)
		}
	}
	s.persistMu.Unlock()
	s.subs.drain()

	return snap, nil
}

// Login verifies creds with the authentication service.
//
// The session is Authenticating while the call is in flight. On success it
// becomes Authenticated and the token is persisted; on failure it returns to
// Anonymous and the error is one of ErrInvalidCredentials,
// ErrServiceUnavailable, ErrTimeout or ErrOperationCanceled. Login never
// retries. A second Login or Refresh while one is pending fails with
// ErrConcurrentOperation and changes nothing.
func (s *Store) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	ctx = orBackground(ctx)

	s.mu.Lock()
	if s.closed {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, ErrStoreClosed
	}
	if s.inflight != opNone {
		snap := s.current.Clone()
		s.mu.Unlock()
		s.metrics.Inc(MetricConcurrentRejected)
		return snap, ErrConcurrentOperation
	}
	if s.current.Status == session.StatusAuthenticated {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, ErrAlreadyAuthenticated
	}
	ticket := s.beginLocked(opLogin)
	s.transitionLocked(session.Session{Status: session.StatusAuthenticating}, ReasonLoginStarted)
	s.mu.Unlock()
	s.subs.drain()

	callCtx, cancel := withTimeout(ctx, s.config.Login.Timeout)
	start := time.Now()
	grant, err := s.auth.Verify(callCtx, creds)
	cancel()
	s.metrics.Observe(MetricAuthLatency, time.Since(start))

	var expiresAt time.Time
	if err == nil {
		expiresAt, err = s.validateGrant(grant)
	}
	err = classifyAuthError(err)

	s.persistMu.Lock()
	s.mu.Lock()
	if ticket != s.ticket {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return s.discard(opLogin)
	}
	s.inflight = opNone

	if err != nil {
		snap := s.transitionLocked(session.Anonymous(), ReasonLoginFailed)
		s.mu.Unlock()
		s.persistMu.Unlock()
		s.subs.drain()

		s.metrics.Inc(MetricLoginFailure)
		if errors.Is(err, ErrInvalidCredentials) {
			s.metrics.Inc(MetricLoginInvalidCredentials)
		}
		s.logger.Info("authguard: login failed", slog.String("error", err.Error()))
		return snap, err
	}

	user := grant.User
	snap := s.transitionLocked(session.Session{
		Status:    session.StatusAuthenticated,
		User:      user.Clone(),
		Token:     grant.Token,
		ExpiresAt: expiresAt,
	}, ReasonLoginSucceeded)
	s.scheduleExpiryLocked(true)
	s.mu.Unlock()

	s.save(ctx, snap)
	s.persistMu.Unlock()
	s.subs.drain()

	s.metrics.Inc(MetricLoginSuccess)
	s.logger.Info("authguard: login succeeded", slog.String("user_id", user.ID))
	return snap, nil
}

// Logout clears the session and the persisted token and moves to Anonymous.
// It also discards any pending Hydrate, Login or Refresh. On an Anonymous
// store it is a no-op. The returned error only reports a persistence failure;
// the in-memory session is cleared regardless.
func (s *Store) Logout(ctx context.Context) error {
	ctx = orBackground(ctx)

	s.persistMu.Lock()
	s.mu.Lock()
	if s.current.Status == session.StatusAnonymous && s.inflight == opNone {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return nil
	}
	s.ticket++
	s.inflight = opNone
	s.stopTimerLocked()
	userID := ""
	if s.current.User != nil {
		userID = s.current.User.ID
	}
	s.transitionLocked(session.Anonymous(), ReasonLogout)
	s.mu.Unlock()

	err := s.persist.Clear(context.WithoutCancel(ctx))
	s.persistMu.Unlock()
	s.subs.drain()

	s.metrics.Inc(MetricLogout)
	s.logger.Info("authguard: logout", slog.String("user_id", userID))
	if err != nil {
		s.persistFailed("clear", err)
		return persistenceError(err)
	}
	return nil
}

// Refresh renews the current token.
//
// On success the session stays Authenticated with the new token. When the
// service refuses the token the session becomes Expired and Refresh returns
// the Expired snapshot with a nil error. Transient failures (ErrServiceUnavailable,
// ErrTimeout) also expire the session unless Refresh.KeepOnTransientFailure is
// set and the token is still valid; the error is returned either way.
func (s *Store) Refresh(ctx context.Context) (session.Session, error) {
	ctx = orBackground(ctx)

	s.mu.Lock()
	if s.closed {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, ErrStoreClosed
	}
	if s.inflight != opNone {
		snap := s.current.Clone()
		s.mu.Unlock()
		s.metrics.Inc(MetricConcurrentRejected)
		return snap, ErrConcurrentOperation
	}
	if s.current.Status != session.StatusAuthenticated {
		snap := s.current.Clone()
		s.mu.Unlock()
		return snap, ErrNotAuthenticated
	}
	ticket := s.beginLocked(opRefresh)
	token := s.current.Token
	s.mu.Unlock()

	callCtx, cancel := withTimeout(ctx, s.config.Refresh.Timeout)
	start := time.Now()
	renewal, err := s.auth.Renew(callCtx, token)
	cancel()
	s.metrics.Observe(MetricAuthLatency, time.Since(start))

	var expiresAt time.Time
	if err == nil {
		if renewal.Token == "" {
			err = fmt.Errorf("%w: renewal carried no token", ErrServiceUnavailable)
		} else {
			expiresAt, err = s.checkToken(renewal.Token, renewal.ExpiresAt)
			if err != nil {
				err = fmt.Errorf("%w: renewed token rejected: %v", ErrServiceUnavailable, err)
			}
		}
	}
	err = classifyAuthError(err)

	s.persistMu.Lock()
	s.mu.Lock()
	if ticket != s.ticket {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return s.discard(opRefresh)
	}
	s.inflight = opNone

	if err == nil {
		next := s.current.Clone()
		next.Token = renewal.Token
		next.ExpiresAt = expiresAt
		snap := s.transitionLocked(next, ReasonRefreshed)
		s.scheduleExpiryLocked(true)
		s.mu.Unlock()

		s.save(ctx, snap)
		s.persistMu.Unlock()
		s.subs.drain()

		s.metrics.Inc(MetricRefreshSuccess)
		return snap, nil
	}

	s.metrics.Inc(MetricRefreshFailure)
	canceled := errors.Is(err, ErrOperationCanceled)
	keep := canceled ||
		(isTransient(err) && s.config.Refresh.KeepOnTransientFailure && !s.current.ExpiredAt(s.clock.Now()))
	if keep {
		s.scheduleExpiryLocked(canceled)
		snap := s.current.Clone()
		s.mu.Unlock()
		s.persistMu.Unlock()
		s.logger.Warn("authguard: refresh failed, session kept", slog.String("error", err.Error()))
		return snap, err
	}

	snap := s.expireLocked(ReasonRefreshFailed)
	s.mu.Unlock()
	if clearErr := s.persist.Clear(context.WithoutCancel(ctx)); clearErr != nil {
		s.persistFailed("clear", clearErr)
	}
	s.persistMu.Unlock()
	s.subs.drain()

	s.logger.Info("authguard: refresh failed, session expired", slog.String("error", err.Error()))
	if isTransient(err) {
		return snap, err
	}
	return snap, nil
}

// Cancel discards the pending Hydrate, Login or Refresh. Its eventual result
// is dropped and its caller receives ErrOperationSuperseded. A pending login
// rolls the session back to the status it had before the login started. A
// canceled refresh leaves the session to its expiry: it expires at once when
// the token already ran out.
func (s *Store) Cancel() {
	s.persistMu.Lock()
	s.mu.Lock()
	if s.inflight == opNone {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return
	}
	kind := s.inflight
	s.ticket++
	s.inflight = opNone
	expired := false
	switch kind {
	case opLogin:
		s.transitionLocked(s.rollback.Clone(), ReasonCanceled)
	case opRefresh:
		if s.current.Status == session.StatusAuthenticated {
			if s.current.ExpiredAt(s.clock.Now()) {
				s.expireLocked(ReasonTokenExpired)
				expired = true
			} else {
				s.scheduleExpiryLocked(false)
			}
		}
	}
	s.mu.Unlock()

	if expired {
		if err := s.persist.Clear(context.Background()); err != nil {
			s.persistFailed("clear", err)
		}
	}
	s.persistMu.Unlock()
	s.subs.drain()

	s.logger.Debug("authguard: operation canceled", slog.String("op", kind.String()))
}

// Close cancels pending work, stops timers, flushes the audit dispatcher and
// drops all listeners. Mutating calls on a closed Store return ErrStoreClosed;
// Logout and reads keep working.
func (s *Store) Close() {
	s.Cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.audit.Close()
	if s.audit != nil {
		s.logger.Debug("authguard: audit dispatcher closed",
			slog.Uint64("delivered", s.audit.Delivered()),
			slog.Uint64("dropped", s.audit.Dropped()),
			slog.Uint64("stale", s.audit.Stale()),
		)
	}
	s.subs.reset()
}

// MetricsSnapshot returns a copy of the Store's counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (s *Store) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

func (s *Store) beginLocked(kind opKind) uint64 {
	s.ticket++
	s.inflight = kind
	s.rollback = s.current.Clone()
	return s.ticket
}

// transitionLocked publishes next and queues its notification. Callers drain
// the queue after releasing every lock.
func (s *Store) transitionLocked(next session.Session, reason string) session.Session {
	prev := s.current
	next.Version = prev.Version + 1
	next.InstanceID = s.instanceID
	if next.Status != session.StatusExpired {
		next.Previous = nil
	}
	s.current = next

	s.subs.enqueue(Transition{From: prev.Clone(), To: next.Clone(), Reason: reason})
	s.metrics.Inc(MetricTransition)
	s.logger.Debug("authguard: session transition",
		slog.String("from", prev.Status.String()),
		slog.String("to", next.Status.String()),
		slog.String("reason", reason),
		slog.Uint64("version", next.Version),
	)
	return next.Clone()
}

// expireLocked drops the token and moves to Expired, keeping the identity in
// Previous for display.
func (s *Store) expireLocked(reason string) session.Session {
	s.stopTimerLocked()
	prev := s.current
	s.metrics.Inc(MetricSessionExpired)
	return s.transitionLocked(session.Session{
		Status:   session.StatusExpired,
		Previous: prev.User.Clone(),
	}, reason)
}

func (s *Store) discard(kind opKind) (session.Session, error) {
	s.metrics.Inc(MetricStaleDiscarded)
	s.logger.Debug("authguard: stale completion discarded", slog.String("op", kind.String()))
	return s.CurrentSession(), ErrOperationSuperseded
}

func (s *Store) validateGrant(grant Grant) (time.Time, error) {
	if grant.Token == "" || grant.User.ID == "" {
		return time.Time{}, fmt.Errorf("%w: incomplete grant", ErrServiceUnavailable)
	}
	expiresAt, err := s.checkToken(grant.Token, grant.ExpiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: issued token rejected: %v", ErrServiceUnavailable, err)
	}
	return expiresAt, nil
}

// checkToken verifies token when a key is configured and fills in a missing
// expiry from its exp claim. Opaque tokens are accepted with the known expiry.
func (s *Store) checkToken(token string, known time.Time) (time.Time, error) {
	if s.tokens == nil {
		return known, nil
	}
	if s.tokens.CanVerify() {
		claims, err := s.tokens.Parse(token)
		if err != nil {
			return time.Time{}, err
		}
		if known.IsZero() {
			known = claims.Expiry()
		}
		return known, nil
	}
	if !known.IsZero() {
		return known, nil
	}
	claims, err := s.tokens.Inspect(token)
	if err != nil {
		return time.Time{}, nil
	}
	return claims.Expiry(), nil
}

func (s *Store) save(ctx context.Context, snap session.Session) {
	if snap.User == nil {
		return
	}
	rec := session.Record{
		User:      *snap.User,
		Token:     snap.Token,
		ExpiresAt: snap.ExpiresAt,
		SavedAt:   s.clock.Now(),
	}
	if err := s.persist.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.persistFailed("save", err)
	}
}

func (s *Store) persistFailed(op string, err error) {
	s.metrics.Inc(MetricPersistenceFailure)
	s.logger.Warn("authguard: session persistence failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (s *Store) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// scheduleExpiryLocked arms the timer for the current session: a silent
// refresh Lead before expiry when auto refresh is on and allowed, otherwise
// the move to Expired at expiry.
func (s *Store) scheduleExpiryLocked(allowRefresh bool) {
	s.stopTimerLocked()
	cur := s.current
	if s.closed || cur.Status != session.StatusAuthenticated || cur.ExpiresAt.IsZero() {
		return
	}

	version := cur.Version
	remaining := cur.ExpiresAt.Sub(s.clock.Now())

	if allowRefresh && s.config.Refresh.Auto && remaining > 0 {
		d := remaining - s.config.Refresh.Lead
		if d <= 0 {
			// Token shorter than the lead: renew halfway through instead.
			d = remaining / 2
		}
		s.timer = s.clock.AfterFunc(d, func() { s.autoRefresh(version) })
		return
	}

	if remaining < 0 {
		remaining = 0
	}
	s.timer = s.clock.AfterFunc(remaining, func() { s.expireIfDue(version) })
}

func (s *Store) autoRefresh(version uint64) {
	s.mu.Lock()
	stale := s.closed || s.current.Version != version || s.current.Status != session.StatusAuthenticated
	s.mu.Unlock()
	if stale {
		return
	}

	if _, err := s.Refresh(context.Background()); err != nil && !errors.Is(err, ErrConcurrentOperation) {
		s.logger.Debug("authguard: background refresh failed", slog.String("error", err.Error()))
	}
}

// expireIfDue moves the session identified by version to Expired if its token
// has run out. A pending refresh decides instead.
func (s *Store) expireIfDue(version uint64) {
	s.persistMu.Lock()
	s.mu.Lock()
	cur := s.current
	if s.closed || cur.Version != version || cur.Status != session.StatusAuthenticated || s.inflight != opNone {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return
	}
	if !cur.ExpiredAt(s.clock.Now()) {
		s.scheduleExpiryLocked(false)
		s.mu.Unlock()
		s.persistMu.Unlock()
		return
	}
	s.expireLocked(ReasonTokenExpired)
	s.mu.Unlock()

	if err := s.persist.Clear(context.Background()); err != nil {
		s.persistFailed("clear", err)
	}
	s.persistMu.Unlock()
	s.subs.drain()
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
