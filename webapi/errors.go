package webapi

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid username and/or password")

	// ErrUnsupportedVersion means the server does not offer the requested API version, or none
	// of the script API versions this client speaks.
	ErrUnsupportedVersion = errors.New("unsupported API version")

	ErrNoSuchConfiguration = errors.New("no such configuration")

	ErrTestRunning = errors.New("test already running")
)

// ConfigError reports a missing or malformed connection or call parameter.
type ConfigError struct {
	Param   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid '%s' parameter: %s", e.Param, e.Message)
}

func required(param string) error {
	return &ConfigError{Param: param, Message: "a non-empty value is required"}
}

// TestFailedError carries the error notifications a session reported after a test.
type TestFailedError struct {
	Notifications []string
}

func (e *TestFailedError) Error() string {
	return "the test failed with the following error(s): " + strings.Join(e.Notifications, "; ")
}
