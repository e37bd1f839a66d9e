package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoInvoker is returned when no client is implemented for a provider.
	ErrNoInvoker = errors.New("No AI invoker implemented yet for provider")

	// ErrFatalAPI marks provider errors that retrying will not fix
	// (credentials, quota, billing).
	ErrFatalAPI = errors.New("fatal API error")
)

// StatusError is a non-2xx response from a provider's REST API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s REST error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// fatalMarkers are lower-case substrings of provider errors that indicate a
// configuration or account problem.
var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode == 401 || status.StatusCode == 403 || status.StatusCode == 429
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// fatalError matches ErrFatalAPI while keeping the provider's message,
// which ends up in the transcript.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string        { return e.err.Error() }
func (e *fatalError) Unwrap() error        { return e.err }
func (e *fatalError) Is(target error) bool { return target == ErrFatalAPI }

// wrapFatalError tags fatal errors with ErrFatalAPI and passes others through.
func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return &fatalError{err: err}
	}
	return err
}
