package webapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hypermedia-lab/labclient/convention"
	"github.com/hypermedia-lab/labclient/logging"
	"github.com/hypermedia-lab/labclient/metrics"
	"github.com/hypermedia-lab/labclient/resource"
	"github.com/hypermedia-lab/labclient/servicedef"
	"github.com/hypermedia-lab/labclient/transport"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Config holds everything Connect needs. Either APIKey or both Username and Password must be
// set.
type Config struct {
	SiteURL    string
	APIVersion string
	APIKey     string
	Username   string
	Password   string

	// HTTPClient defaults to transport.NewHTTPClient with TLS verification off.
	HTTPClient   *http.Client
	Logger       logging.Logger
	Metrics      *metrics.Collector
	Trace        bool
	PollInterval time.Duration
	Headers      map[string]string
	Params       map[string]string
}

func (c Config) validate() error {
	if strings.TrimSpace(c.SiteURL) == "" {
		return required("siteUrl")
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		return required("apiVersion")
	}
	if c.APIKey == "" {
		if c.Username == "" {
			return required("username")
		}
		if c.Password == "" {
			return required("password")
		}
	}
	return nil
}

// Connection is an authenticated connection to a lab server.
type Connection struct {
	chain  *convention.Chain
	apiKey string
	logger logging.Logger
}

// Connect opens a connection to the lab at cfg.SiteURL. It fails if the server does not offer
// cfg.APIVersion or a compatible script API, or if the credentials are rejected.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		var err error
		if client, err = transport.NewHTTPClient(transport.Options{}); err != nil {
			return nil, err
		}
	}
	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if !hasHeader(headers, contentTypeHeader) {
		headers[contentTypeHeader] = contentTypeJSON
	}
	root, err := convention.JoinURL(cfg.SiteURL, "api")
	if err != nil {
		return nil, err
	}

	opts := []convention.Option{
		convention.WithHTTPClient(client),
		convention.WithLogger(cfg.Logger),
		convention.WithMetrics(cfg.Metrics),
		convention.WithTrace(cfg.Trace),
		convention.WithHeaders(headers),
		convention.WithParams(cfg.Params),
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, convention.WithPollInterval(cfg.PollInterval))
	}
	c := &Connection{
		chain:  convention.New(root, opts...),
		apiKey: cfg.APIKey,
		logger: logging.OrNull(cfg.Logger),
	}

	if err := c.checkVersion(ctx, "versions", []string{cfg.APIVersion}); err != nil {
		return nil, err
	}
	versioned, err := convention.JoinURL(root, cfg.APIVersion)
	if err != nil {
		return nil, err
	}
	c.chain.SetURL(versioned)

	if c.apiKey == "" {
		if c.apiKey, err = c.fetchAPIKey(ctx, cfg.Username, cfg.Password); err != nil {
			return nil, err
		}
	}
	c.chain.UpdateHeaders(map[string]string{servicedef.APIKeyHeader: c.apiKey})

	if err := c.checkVersion(ctx, "scriptapi/versions", []string{servicedef.ScriptAPIVersion}); err != nil {
		return nil, err
	}
	if _, err := c.chain.GetRaw(ctx, "auth/ping"); err != nil {
		return nil, err
	}
	c.logger.Printf("Connected to %s", versioned)
	return c, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// checkVersion fails unless the version list at url contains one of wanted.
func (c *Connection) checkVersion(ctx context.Context, url string, wanted []string) error {
	reply, err := c.chain.GetRaw(ctx, url, convention.NoNotifications())
	if err != nil {
		return err
	}
	var infos []servicedef.VersionInfo
	if err := reply.DecodeJSON(&infos); err != nil {
		return err
	}
	available := make([]string, 0, len(infos))
	for _, info := range infos {
		available = append(available, info.Version)
		for _, w := range wanted {
			if info.Version == w {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: none of %v in available versions %v from %s", ErrUnsupportedVersion, wanted, available, url)
}

// fetchAPIKey logs in with a username and password, reads the user's key and logs out again.
// The login is tracked by cookie, so the HTTP client needs a cookie jar.
func (c *Connection) fetchAPIKey(ctx context.Context, username, password string) (key string, err error) {
	_, err = c.chain.PostRaw(ctx, "auth/session",
		servicedef.Credentials{Username: username, Password: password}, convention.NoNotifications())
	if err != nil {
		var pe *convention.ProtocolError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	defer func() {
		_, logoutErr := c.chain.Delete(ctx, "auth/session", convention.NoNotifications())
		if err == nil {
			err = logoutErr
		}
	}()

	reply, err := c.chain.GetRaw(ctx, "auth/session/key", convention.NoNotifications())
	if err != nil {
		return "", err
	}
	var k servicedef.APIKeyReply
	if len(reply.Body) == 0 || reply.DecodeJSON(&k) != nil || k.APIKey == "" {
		return "", errors.New("authorization response not understood")
	}
	return k.APIKey, nil
}

// Chain is the versioned API root scope.
func (c *Connection) Chain() *convention.Chain { return c.chain }

// APIKey returns the key in use, whether given or fetched with a username and password.
func (c *Connection) APIKey() string { return c.apiKey }

// SessionTypes lists the kinds of session the server can create.
func (c *Connection) SessionTypes(ctx context.Context) ([]string, error) {
	reply, err := c.chain.GetRaw(ctx, "applicationtypes")
	if err != nil {
		return nil, err
	}
	var types []struct {
		Type string `json:"type"`
	}
	if err := reply.DecodeJSON(&types); err != nil {
		return nil, err
	}
	ret := make([]string, len(types))
	for i, t := range types {
		ret[i] = t.Type
	}
	return ret, nil
}

// SessionIDs lists the ids of all sessions on the server.
func (c *Connection) SessionIDs(ctx context.Context) ([]int64, error) {
	reply, err := c.chain.GetRaw(ctx, "sessions")
	if err != nil {
		return nil, err
	}
	var sessions []struct {
		ID int64 `json:"id"`
	}
	if err := reply.DecodeJSON(&sessions); err != nil {
		return nil, err
	}
	ret := make([]int64, len(sessions))
	for i, s := range sessions {
		ret[i] = s.ID
	}
	return ret, nil
}

// CreateSession creates a session of the given type. The session is not started.
func (c *Connection) CreateSession(ctx context.Context, sessionType string) (*Session, error) {
	if sessionType == "" {
		return nil, required("sessionType")
	}
	v, err := c.chain.Post(ctx, "sessions",
		servicedef.CreateSessionParams{ApplicationType: sessionType}, convention.NoNotifications())
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*resource.Object)
	if !ok {
		return nil, fmt.Errorf("creating a %s session returned %T, not a session", sessionType, v)
	}
	return newSession(c, obj)
}

// JoinSession attaches to an existing session, which may belong to another client.
func (c *Connection) JoinSession(ctx context.Context, id int64) (*Session, error) {
	obj, err := c.chain.GetObject(ctx, fmt.Sprintf("sessions/%d", id), convention.NoNotifications())
	if err != nil {
		return nil, err
	}
	return newSession(c, obj)
}

func (c *Connection) StartSession(ctx context.Context, id int64, opts resource.WaitOptions) error {
	s, err := c.JoinSession(ctx, id)
	if err != nil {
		return err
	}
	return s.Start(ctx, opts)
}

func (c *Connection) StopSession(ctx context.Context, id int64, opts resource.WaitOptions) error {
	s, err := c.JoinSession(ctx, id)
	if err != nil {
		return err
	}
	return s.Stop(ctx, opts)
}

// AvailableStats describes the stat groups, stats and filters of a test or result.
func (c *Connection) AvailableStats(ctx context.Context, resultID int64) (*resource.Object, error) {
	return c.chain.GetObject(ctx, fmt.Sprintf("results/%d/schema", resultID))
}

// StatsCSVZip writes a zip archive of every stat of a test or result to w.
func (c *Connection) StatsCSVZip(ctx context.Context, resultID int64, w io.Writer) (int64, error) {
	return c.chain.PostAndDownload(ctx, fmt.Sprintf("results/%d/zip", resultID), nil, w)
}

// StatsCSV writes the stats selected by request, in CSV form, to w.
func (c *Connection) StatsCSV(ctx context.Context, resultID int64, request interface{}, w io.Writer) (int64, error) {
	if request == nil {
		return 0, required("statsCsvRequest")
	}
	return c.chain.PostAndDownload(ctx, fmt.Sprintf("results/%d/csv", resultID), request, w)
}

// CollectSessionDiagnostics gathers debug diagnostics for a session and writes the archive
// to w.
func (c *Connection) CollectSessionDiagnostics(ctx context.Context, sessionID int64, clientOnly bool, w io.Writer) (int64, error) {
	return c.chain.PostAndDownload(ctx, fmt.Sprintf("diagnostics/sessions/%d/diags", sessionID),
		servicedef.DiagnosticsParams{ClientOnly: clientOnly}, w)
}
