package webapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hypermedia-lab/labclient/convention"
	"github.com/hypermedia-lab/labclient/resource"
	"github.com/hypermedia-lab/labclient/servicedef"
	"github.com/hypermedia-lab/labclient/stats"
)

// Session is a test session on the lab server. Requests made through its Chain have the
// session's error notifications appended to their error messages.
type Session struct {
	conn  *Connection
	chain *convention.Chain
	id    int64

	lock       sync.Mutex
	data       *resource.Object
	currentRun *resource.Object
}

func newSession(conn *Connection, data *resource.Object) (*Session, error) {
	id, err := data.IntField("id")
	if err != nil {
		return nil, fmt.Errorf("session reply has no id: %w", err)
	}
	s := &Session{conn: conn, id: id, data: data}
	s.chain = conn.chain.Scope(fmt.Sprintf("sessions/%d", id), convention.WithNotifier(s))
	data.SetSource(s.location())
	return s, nil
}

func (s *Session) location() *resource.Location {
	return resource.NewLocation(s.chain, "")
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Chain() *convention.Chain { return s.chain }

func (s *Session) Connection() *Connection { return s.conn }

// Data returns the session resource as last fetched.
func (s *Session) Data() *resource.Object {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.data
}

func (s *Session) stringField(name string) string {
	v, _ := s.Field(name)
	return resource.ValueText(v)
}

func (s *Session) Type() string { return s.stringField("applicationType") }

func (s *Session) State() string { return s.stringField("state") }

func (s *Session) SubState() string { return s.stringField("subState") }

func (s *Session) TestConfigName() string { return s.stringField("testConfigName") }

// Field reads a field of the session resource as last fetched.
func (s *Session) Field(name string) (interface{}, bool) {
	return s.Data().Field(name)
}

// Refresh fetches the session resource again.
func (s *Session) Refresh(ctx context.Context) error {
	obj, err := s.chain.GetObject(ctx, "")
	if err != nil {
		return err
	}
	obj.SetSource(s.location())
	s.lock.Lock()
	s.data = obj
	s.lock.Unlock()
	return nil
}

// WaitForState refreshes the session until its state is one of targets.
func (s *Session) WaitForState(ctx context.Context, targets []string, opts resource.WaitOptions) error {
	if opts.Logger == nil {
		opts.Logger = s.chain.Logger()
	}
	return resource.WaitForProperty(ctx, s, "state", targets, opts)
}

// Start starts the session and waits until it is active.
func (s *Session) Start(ctx context.Context, opts resource.WaitOptions) error {
	if _, err := s.chain.Post(ctx, "operations/start", nil); err != nil {
		return err
	}
	opts.Valid = []string{servicedef.SessionInitial, servicedef.SessionStarting}
	return s.WaitForState(ctx, []string{servicedef.SessionActive}, opts)
}

// Stop stops the session and waits until it is stopped.
func (s *Session) Stop(ctx context.Context, opts resource.WaitOptions) error {
	if _, err := s.chain.Post(ctx, "operations/stop", nil); err != nil {
		return err
	}
	opts.Valid = []string{servicedef.SessionActive, servicedef.SessionStopping}
	return s.WaitForState(ctx, []string{servicedef.SessionStopped}, opts)
}

// Notifications returns the session's current notifications. They live outside the session
// scope, under the API root.
func (s *Session) Notifications(ctx context.Context) ([]servicedef.Notification, error) {
	reply, err := s.conn.chain.GetRaw(ctx, fmt.Sprintf("notifications/sessions/%d", s.id), convention.NoNotifications())
	if err != nil {
		return nil, err
	}
	if len(reply.Body) == 0 {
		return nil, nil
	}
	var ret []servicedef.Notification
	if err := reply.DecodeJSON(&ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// ErrorNotifications returns the messages of the session's error-level notifications.
func (s *Session) ErrorNotifications(ctx context.Context) ([]string, error) {
	all, err := s.Notifications(ctx)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, n := range all {
		if n.Level == servicedef.NotificationLevelError {
			ret = append(ret, n.Message)
		}
	}
	return ret, nil
}

// CheckNotifications returns a *TestFailedError if the session has error notifications.
func (s *Session) CheckNotifications(ctx context.Context) error {
	msgs, err := s.ErrorNotifications(ctx)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		return &TestFailedError{Notifications: msgs}
	}
	return nil
}

// CurrentTestRun returns the run started by the last StartTest, or nil.
func (s *Session) CurrentTestRun() *resource.Object {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.currentRun
}

func (s *Session) setCurrentRun(run *resource.Object) {
	s.lock.Lock()
	s.currentRun = run
	s.lock.Unlock()
}

// TestRun fetches a test run by id.
func (s *Session) TestRun(ctx context.Context, testID int64) (*resource.Object, error) {
	return s.chain.GetObject(ctx, testRunPath(testID))
}

func testRunPath(testID int64) string { return fmt.Sprintf("testruns/%d", testID) }

// TestIsRunning reports whether the current test run is starting, running or stopping.
func (s *Session) TestIsRunning(ctx context.Context) (bool, error) {
	run := s.CurrentTestRun()
	if run == nil {
		return false, nil
	}
	return resource.CheckForPropertyValue(ctx, run, "testState",
		[]string{servicedef.TestRunning, servicedef.TestStarting, servicedef.TestStopping}, true)
}

// StartTest starts the configured test and returns its run without waiting for it to end.
func (s *Session) StartTest(ctx context.Context) (*resource.Object, error) {
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	running, err := s.TestIsRunning(ctx)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("cannot start test: %w", ErrTestRunning)
	}
	v, err := s.chain.Post(ctx, "testruns", nil)
	if err != nil {
		return nil, err
	}
	run, ok := v.(*resource.Object)
	if !ok {
		return nil, fmt.Errorf("creating a test run returned %T, not a test run", v)
	}
	testID, err := run.IntField("testId")
	if err != nil {
		return nil, err
	}
	if run.Source() == nil {
		run.SetSource(resource.NewLocation(s.chain, testRunPath(testID)))
	}
	s.setCurrentRun(run)
	if _, err := s.chain.Post(ctx, testRunPath(testID)+"/operations/start", nil); err != nil {
		return nil, err
	}
	return run, nil
}

// WaitTestStopped waits until a test run has stopped, then checks the session's
// notifications. A testID of 0 means the current run.
func (s *Session) WaitTestStopped(ctx context.Context, testID int64, opts resource.WaitOptions) error {
	var run *resource.Object
	if testID != 0 {
		var err error
		if run, err = s.TestRun(ctx, testID); err != nil {
			return err
		}
	} else if run = s.CurrentTestRun(); run == nil {
		return errors.New("either a test id must be given or a test must have been started with StartTest")
	}
	if opts.Logger == nil {
		opts.Logger = s.chain.Logger()
	}
	if err := resource.WaitForProperty(ctx, run, "testState", []string{servicedef.TestStopped}, opts); err != nil {
		return err
	}
	if err := s.CheckNotifications(ctx); err != nil {
		return err
	}
	s.setCurrentRun(nil)
	return nil
}

// RunTest starts the configured test and waits for it to stop.
func (s *Session) RunTest(ctx context.Context, opts resource.WaitOptions) (*resource.Object, error) {
	run, err := s.StartTest(ctx)
	if err != nil {
		return nil, err
	}
	return run, s.WaitTestStopped(ctx, 0, opts)
}

// StopTest stops the current test run and waits for it to stop.
func (s *Session) StopTest(ctx context.Context, graceful bool, opts resource.WaitOptions) error {
	run := s.CurrentTestRun()
	if run == nil {
		return errors.New("no test has been started with StartTest")
	}
	testID, err := run.IntField("testId")
	if err != nil {
		return err
	}
	if _, err := s.chain.Post(ctx, testRunPath(testID)+"/operations/stop",
		servicedef.StopTestParams{GracefulStop: graceful}); err != nil {
		return err
	}
	return s.WaitTestStopped(ctx, 0, opts)
}

// SaveConfiguration saves the session's configuration under name.
func (s *Session) SaveConfiguration(ctx context.Context, name, description string, overwrite bool) error {
	if strings.TrimSpace(name) == "" {
		return required("configName")
	}
	_, err := s.chain.Post(ctx, fmt.Sprintf("config/%s/operations/save", s.Type()),
		servicedef.SaveConfigurationParams{Name: name, Description: description, Overwrite: overwrite})
	return err
}

// LoadConfiguration replaces the session's configuration with the named one.
func (s *Session) LoadConfiguration(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return required("configName")
	}
	_, err := s.chain.Post(ctx, fmt.Sprintf("config/%s/operations/load", s.Type()),
		servicedef.LoadConfigurationParams{Name: name})
	return err
}

// Configurations lists the saved configurations for this session's type.
func (s *Session) Configurations(ctx context.Context) (*resource.List, error) {
	return s.conn.Configurations(ctx, s.Type())
}

func (s *Session) ExportConfiguration(ctx context.Context, name string, w io.Writer) (int64, error) {
	config, err := s.conn.FindConfiguration(ctx, s.Type(), name)
	if err != nil {
		return 0, err
	}
	id, err := config.IntField("id")
	if err != nil {
		return 0, err
	}
	return s.conn.ExportConfiguration(ctx, s.Type(), id, w)
}

func (s *Session) ImportConfiguration(ctx context.Context, fileName string, r io.Reader) (interface{}, error) {
	return s.conn.ImportConfiguration(ctx, s.Type(), fileName, r)
}

func (s *Session) DeleteConfiguration(ctx context.Context, name string) error {
	config, err := s.conn.FindConfiguration(ctx, s.Type(), name)
	if err != nil {
		return err
	}
	id, err := config.IntField("id")
	if err != nil {
		return err
	}
	return s.conn.DeleteConfiguration(ctx, s.Type(), id)
}

// RegisterStats registers a stats query for the session's current test.
func (s *Session) RegisterStats(ctx context.Context, q *stats.Query, opts ...stats.ReaderOption) (*stats.Reader, error) {
	return stats.Register(ctx, s.chain, q, opts...)
}

// CollectDiagnostics writes a diagnostics archive for the session to w.
func (s *Session) CollectDiagnostics(ctx context.Context, clientOnly bool, w io.Writer) (int64, error) {
	return s.conn.CollectSessionDiagnostics(ctx, s.id, clientOnly, w)
}
