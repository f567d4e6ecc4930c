package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// AuthError means the stored credentials are no longer usable: expired
// refresh token, revoked consent or missing scopes. The run must abort
// and the user has to reconnect their account.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gmail: %s: authorization failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError covers rate limiting and provider-side failures that
// are worth retrying with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("gmail: %s: transient provider failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// classify maps a provider error onto the import error taxonomy.
// 401/403 mean the token is dead; 429 and 5xx are retryable. Token
// refresh failures from the OAuth endpoint also mean reconnect.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return &AuthError{Op: op, Err: err}
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return &TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("gmail: %s: %w", op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Op: op, Err: err}
	}

	// Anything else at this layer is network-shaped.
	return &TransientError{Op: op, Err: err}
}
