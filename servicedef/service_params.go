package servicedef

const (
	// StateSuccess is the terminal state of an async operation that completed normally. The
	// server's capitalization varies, so compare with strings.EqualFold.
	StateSuccess = "success"

	NotificationLevelError = "Error"

	APIKeyHeader = "X-Api-Key"

	// ScriptAPIVersion is the only script API version this client speaks.
	ScriptAPIVersion = "v1"
)

// Values of a session's "state" field.
const (
	SessionInitial  = "Initial"
	SessionStarting = "Starting"
	SessionActive   = "Active"
	SessionStopping = "Stopping"
	SessionStopped  = "Stopped"
	SessionDead     = "Dead"
)

// Values of a test run's "testState" field.
const (
	TestNotStarted = "NotStarted"
	TestStarting   = "Starting"
	TestRunning    = "Running"
	TestStopping   = "Stopping"
	TestStopped    = "Stopped"
)

// OperationStatus is the body of a 202 reply and of every subsequent status poll.
type OperationStatus struct {
	URL       string  `json:"url"`
	Progress  float64 `json:"progress"`
	State     string  `json:"state"`
	Message   string  `json:"message,omitempty"`
	ResultURL string  `json:"resultUrl,omitempty"`
}

// VersionInfo is one element of the "versions" resources.
type VersionInfo struct {
	Version string `json:"version"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type APIKeyReply struct {
	APIKey string `json:"apiKey"`
}

type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type CreateSessionParams struct {
	ApplicationType string `json:"applicationType"`
}

type DiagnosticsParams struct {
	ClientOnly bool `json:"clientOnly"`
}

type SaveConfigurationParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Overwrite   bool   `json:"overwrite"`
}

type LoadConfigurationParams struct {
	Name string `json:"name"`
}

type StopTestParams struct {
	GracefulStop bool `json:"gracefulStop"`
}
