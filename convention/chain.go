package convention

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hypermedia-lab/labclient/logging"
	"github.com/hypermedia-lab/labclient/metrics"
)

const defaultPollInterval = 100 * time.Millisecond

// Notifier supplies the server's current error notifications. A scope with a Notifier appends
// them to the message of every failed request it makes.
type Notifier interface {
	ErrorNotifications(ctx context.Context) ([]string, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context) ([]string, error)

func (f NotifierFunc) ErrorNotifications(ctx context.Context) ([]string, error) { return f(ctx) }

// shared is the state a scope inherits from its parent unless an option overrides it.
type shared struct {
	client       *http.Client
	logger       logging.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration
	trace        bool
}

// Chain is one scope of request conventions. It is safe for concurrent use.
type Chain struct {
	parent   *Chain
	state    *shared
	url      string
	headers  map[string]string
	params   map[string]string
	extras   Extras
	notifier Notifier
	lock     sync.RWMutex
}

// Option configures a Chain when it is created with New or Scope.
type Option func(*Chain)

// WithHTTPClient sets the client used for every request in this scope and its children.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Chain) { c.own().client = client }
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Chain) { c.own().logger = logging.OrNull(logger) }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Chain) { c.own().metrics = m }
}

// WithPollInterval sets the delay between status polls of long-running operations.
func WithPollInterval(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.own().pollInterval = d
		}
	}
}

// WithTrace logs every request as an equivalent curl command line.
func WithTrace(trace bool) Option {
	return func(c *Chain) { c.own().trace = trace }
}

func WithHeaders(headers map[string]string) Option {
	return func(c *Chain) { c.headers = mergeMaps(c.headers, headers) }
}

func WithParams(params map[string]string) Option {
	return func(c *Chain) { c.params = mergeMaps(c.params, params) }
}

func WithExtras(extras Extras) Option {
	return func(c *Chain) { c.extras = c.extras.Merge(extras) }
}

func WithNotifier(n Notifier) Option {
	return func(c *Chain) { c.notifier = n }
}

// New creates a root scope for baseURL.
func New(baseURL string, opts ...Option) *Chain {
	c := &Chain{
		url: baseURL,
		state: &shared{
			client:       http.DefaultClient,
			logger:       logging.NullLogger(),
			pollInterval: defaultPollInterval,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scope creates a child scope whose URL is relative to this one.
func (c *Chain) Scope(url string, opts ...Option) *Chain {
	child := &Chain{parent: c, state: c.state, url: url}
	for _, o := range opts {
		o(child)
	}
	return child
}

// own gives the scope a private copy of the inherited state before an option changes it.
func (c *Chain) own() *shared {
	if c.parent != nil && c.state == c.parent.state {
		s := *c.state
		c.state = &s
	}
	return c.state
}

func (c *Chain) Parent() *Chain { return c.parent }

func (c *Chain) URL() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.url
}

// SetURL changes this scope's URL, for instance once the root has negotiated an API version.
func (c *Chain) SetURL(url string) {
	c.lock.Lock()
	c.url = url
	c.lock.Unlock()
}

// UpdateHeaders adds or replaces headers on this scope.
func (c *Chain) UpdateHeaders(headers map[string]string) {
	c.lock.Lock()
	c.headers = mergeMaps(c.headers, headers)
	c.lock.Unlock()
}

func (c *Chain) UpdateParams(params map[string]string) {
	c.lock.Lock()
	c.params = mergeMaps(c.params, params)
	c.lock.Unlock()
}

func (c *Chain) SetNotifier(n Notifier) {
	c.lock.Lock()
	c.notifier = n
	c.lock.Unlock()
}

func (c *Chain) Logger() logging.Logger { return c.state.logger }

func (c *Chain) HTTPClient() *http.Client { return c.state.client }

// Metrics returns the collector for this scope, which may be nil.
func (c *Chain) Metrics() *metrics.Collector { return c.state.metrics }

// ResolveURL joins the scope URLs from the root down to this scope, then local.
func (c *Chain) ResolveURL(local string) (string, error) {
	base := c.URL()
	if c.parent != nil {
		resolved, err := c.parent.ResolveURL(base)
		if err != nil {
			return "", err
		}
		base = resolved
	}
	return JoinURL(base, local)
}

// ResolveHeaders merges headers from the root down to this scope, then local.
func (c *Chain) ResolveHeaders(local map[string]string) map[string]string {
	ret := make(map[string]string)
	for _, s := range c.lineage() {
		s.lock.RLock()
		ret = mergeMaps(ret, s.headers)
		s.lock.RUnlock()
	}
	return mergeMaps(ret, local)
}

func (c *Chain) ResolveParams(local map[string]string) map[string]string {
	ret := make(map[string]string)
	for _, s := range c.lineage() {
		s.lock.RLock()
		ret = mergeMaps(ret, s.params)
		s.lock.RUnlock()
	}
	return mergeMaps(ret, local)
}

func (c *Chain) ResolveExtras(local Extras) Extras {
	var ret Extras
	for _, s := range c.lineage() {
		s.lock.RLock()
		ret = ret.Merge(s.extras)
		s.lock.RUnlock()
	}
	return ret.Merge(local)
}

// lineage returns the scopes from the root down to c.
func (c *Chain) lineage() []*Chain {
	var ret []*Chain
	for s := c; s != nil; s = s.parent {
		ret = append([]*Chain{s}, ret...)
	}
	return ret
}

// nearestNotifier is the notifier of this scope or its closest ancestor that has one.
func (c *Chain) nearestNotifier() Notifier {
	for s := c; s != nil; s = s.parent {
		s.lock.RLock()
		n := s.notifier
		s.lock.RUnlock()
		if n != nil {
			return n
		}
	}
	return nil
}

func mergeMaps(dest, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dest
	}
	if dest == nil {
		dest = make(map[string]string, len(src))
	}
	for k, v := range src {
		dest[k] = v
	}
	return dest
}
