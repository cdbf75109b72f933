package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingURL is returned by Start when no source URL is configured
	ErrMissingURL = errors.New("transfer: source url is not set")

	// ErrMissingDestination is returned by Start when no destination path is configured
	ErrMissingDestination = errors.New("transfer: destination path is not set")

	// ErrTransferActive is returned when mutating a field that is frozen while a loop runs
	ErrTransferActive = errors.New("transfer: attempt in progress")

	// ErrStopPending is returned by Start while a stopped attempt is still cleaning up
	ErrStopPending = errors.New("transfer: stopped attempt is still shutting down")

	// ErrTooManyRedirects is returned when a redirect chain exceeds the configured hop limit
	ErrTooManyRedirects = errors.New("transfer: too many redirects")

	// ErrReconnectExhausted is returned when a mid-stream fault outlives every reconnect attempt
	ErrReconnectExhausted = errors.New("transfer: reconnect attempts exhausted")
)

// StatusError reports a terminal HTTP response that is not 200 OK
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transfer: unexpected status %d from %s", e.StatusCode, e.URL)
}
