package llm

import (
	"errors"
	"fmt"
)

// ProviderError wraps a failed provider call. Auth distinguishes credential
// or configuration failures (401/403) from transient ones (timeouts, 5xx) so
// callers can decide between retry and abort, and so logs can flag
// misconfiguration separately from load.
type ProviderError struct {
	Provider   string
	StatusCode int
	Auth       bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "provider error"
	if e.Auth {
		kind = "provider auth error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is a credential/configuration failure.
func IsAuthError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Auth
}

func newProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Auth:       status == 401 || status == 403,
		Err:        err,
	}
}
