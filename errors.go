package authguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authguard/session"
)

var (
	// ErrInvalidCredentials is returned by Login when the service rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServiceUnavailable is returned when the authentication service cannot be reached or fails.
	ErrServiceUnavailable = errors.New("authentication service unavailable")
	// ErrTimeout is returned when the authentication service does not answer in time.
	ErrTimeout = errors.New("authentication service timeout")
	// ErrConcurrentOperation is returned when a login, refresh or hydration is already in flight.
	ErrConcurrentOperation = errors.New("concurrent operation in progress")
	// ErrTokenExpired is reported by an Authenticator when renewal is refused
	// because the token is no longer valid. The Store turns it into an Expired
	// session instead of returning it.
	ErrTokenExpired = errors.New("token expired")
	// ErrNotAuthenticated is returned by Refresh when there is no authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyAuthenticated is returned by Login when a session is already active.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrOperationSuperseded is returned to the caller of an operation whose
	// result was discarded because Logout, Cancel or Close ran in the meantime.
	ErrOperationSuperseded = errors.New("operation superseded")
	// ErrOperationCanceled is returned when the caller's context was canceled.
	ErrOperationCanceled = errors.New("operation canceled")
	// ErrStoreClosed is returned by operations on a closed Store.
	ErrStoreClosed = errors.New("session store closed")
	// ErrPersistence wraps failures of the persistence backend.
	ErrPersistence = errors.New("session persistence failed")
)

// classifyAuthError maps an Authenticator failure onto the error taxonomy,
// keeping the original error reachable through errors.Unwrap.
func classifyAuthError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTokenExpired):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrOperationCanceled, err)
	default:
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}

func persistenceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrPersistenceUnavailable) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
