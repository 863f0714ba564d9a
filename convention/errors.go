package convention

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrProtocol is matched by every *ProtocolError.
	ErrProtocol = errors.New("protocol error")

	// ErrAuthentication is matched by a *ProtocolError caused by a redirect to the login page,
	// which is how the server answers a stale or invalid API key.
	ErrAuthentication = errors.New("invalid URL or user key")

	// ErrOperationFailed is matched by every *OperationFailedError.
	ErrOperationFailed = errors.New("operation failed")

	// ErrNoStatus means a 202 reply, or a status poll, came back without a status body.
	ErrNoStatus = errors.New("status not returned")
)

// ProtocolError is returned when the server answers with an error status or redirects to its
// login page. Reply holds what the server sent.
type ProtocolError struct {
	Method        string
	URL           string
	StatusCode    int
	Reason        string
	Body          string
	Notifications string
	LoginRedirect bool
	Reply         *Reply
}

func (e *ProtocolError) Error() string {
	if e.LoginRedirect {
		return fmt.Sprintf("%s request to '%s' failed: invalid URL or user key.%s", e.Method, e.URL, e.Notifications)
	}
	return fmt.Sprintf("%s request to '%s' failed: server returned status %d: %s\n%s%s",
		e.Method, e.URL, e.StatusCode, e.Reason, e.Body, e.Notifications)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol || (e.LoginRedirect && target == ErrAuthentication)
}

// OperationFailedError is returned when a long-running operation finishes in any state other
// than success.
type OperationFailedError struct {
	Method        string
	URL           string
	State         string
	Message       string
	Notifications string
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s to '%s' returned error. State: '%s' Message: '%s'%s",
		e.Method, e.URL, e.State, e.Message, e.Notifications)
}

func (e *OperationFailedError) Is(target error) bool { return target == ErrOperationFailed }

func reasonPhrase(status string, code int) string {
	return strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
}
