package apiclient

import (
	"fmt"
	"net/http"

	"github.com/iyunix/go-telemed/internal/domain"
)

type ErrorType string

const (
	ErrTypeNetwork ErrorType = "NETWORK"
	ErrTypeStatus  ErrorType = "STATUS"
	ErrTypeDecode  ErrorType = "DECODE"
	ErrTypeTimeout ErrorType = "TIMEOUT"
)

// RemoteError is returned by every Client method that fails.
type RemoteError struct {
	Type       ErrorType
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("remote %s error in %s: %s (caused by: %v)", e.Type, e.Op, msg, e.Cause)
	}
	return fmt.Sprintf("remote %s error in %s: %s", e.Type, e.Op, msg)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

// Is lets callers match a 404 with errors.Is(err, domain.ErrNotFound).
func (e *RemoteError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

func newNetworkError(op string, cause error) *RemoteError {
	return &RemoteError{Type: ErrTypeNetwork, Op: op, Message: "request failed", Cause: cause}
}

func newTimeoutError(op string, cause error) *RemoteError {
	return &RemoteError{Type: ErrTypeTimeout, Op: op, Message: "request timed out", Cause: cause}
}

func newStatusError(op string, status int, msg string) *RemoteError {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RemoteError{Type: ErrTypeStatus, Op: op, StatusCode: status, Message: msg}
}

func newDecodeError(op string, cause error) *RemoteError {
	return &RemoteError{Type: ErrTypeDecode, Op: op, Message: "unexpected response body", Cause: cause}
}
