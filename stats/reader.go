package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hypermedia-lab/labclient/convention"
	"github.com/hypermedia-lab/labclient/logging"
	"github.com/hypermedia-lab/labclient/metrics"
	"github.com/hypermedia-lab/labclient/resource"
)

const (
	DefaultTimeout  = 300 * time.Second
	DefaultInterval = 500 * time.Millisecond

	registrationPath   = "stats/registration"
	deregistrationPath = "stats/deregistration"
	dataPath           = "stats/data/cache"
)

// Reader delivers the snapshots of one registered query in timestamp order. Each snapshot
// is delivered once; the server is only asked for data newer than the last one fetched.
//
// NextSnapshot and Close may be called from different goroutines.
type Reader struct {
	chain    *convention.Chain
	query    *Query
	interval time.Duration
	logger   logging.Logger
	metrics  *metrics.Collector

	lock          sync.Mutex // serializes round trips and guards the fields below
	lastTimestamp int64
	batch         []*Snapshot
	next          int
	deregistered  bool

	closeOnce sync.Once
	closed    chan struct{}
}

type ReaderOption func(*Reader)

// WithInterval sets the pause between data requests that return nothing new.
func WithInterval(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithReaderLogger(l logging.Logger) ReaderOption {
	return func(r *Reader) { r.logger = logging.OrNull(l) }
}

// Register registers q on the session scope and returns a Reader for it. The reader must be
// closed to deregister the query.
func Register(ctx context.Context, session *convention.Chain, q *Query, opts ...ReaderOption) (*Reader, error) {
	if q == nil {
		return nil, invalid("the 'query' parameter is required")
	}
	r := &Reader{
		chain:    session,
		query:    q,
		interval: DefaultInterval,
		logger:   session.Logger(),
		metrics:  session.Metrics(),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	if _, err := session.PostRaw(ctx, registrationPath, []*Query{q}, convention.Param("append", "true")); err != nil {
		return nil, fmt.Errorf("could not register stats query %s: %w", q.ID, err)
	}
	r.logger.Printf("Registered stats query %s", q.ID)
	return r, nil
}

func (r *Reader) Query() *Query { return r.query }

func (r *Reader) Closed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// NextSnapshot returns the next undelivered snapshot, polling the server until one is
// available. A timeout of zero or less uses DefaultTimeout. It returns a *TimeoutError if
// nothing arrives in time and ErrClosed as soon as the reader is closed.
func (r *Reader) NextSnapshot(ctx context.Context, timeout time.Duration) (*Snapshot, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	for tries := 0; time.Duration(tries)*r.interval < timeout; tries++ {
		if r.Closed() {
			return nil, ErrClosed
		}
		s, err := r.fetch(ctx)
		if err != nil {
			if r.Closed() {
				return nil, ErrClosed
			}
			return nil, err
		}
		if s != nil {
			return s, nil
		}
		if err := r.pause(ctx); err != nil {
			return nil, err
		}
	}
	if r.Closed() {
		return nil, ErrClosed
	}
	return nil, &TimeoutError{QueryID: r.query.ID, Timeout: timeout}
}

func (r *Reader) pause(ctx context.Context) error {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-r.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetch returns a buffered snapshot if there is one, and otherwise asks the server for the
// next batch. A nil snapshot with no error means there is nothing new yet.
func (r *Reader) fetch(ctx context.Context) (*Snapshot, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.next < len(r.batch) {
		s := r.batch[r.next]
		r.next++
		return s, nil
	}
	batch, err := r.requestData(ctx, r.lastTimestamp)
	if err != nil {
		return nil, err
	}
	r.batch, r.next = batch, 0
	if len(batch) == 0 {
		return nil, nil
	}
	r.lastTimestamp = batch[len(batch)-1].Timestamp
	r.metrics.SnapshotsDelivered(r.query.ID, len(batch))
	r.next = 1
	return batch[0], nil
}

func (r *Reader) requestData(ctx context.Context, since int64) ([]*Snapshot, error) {
	reply, err := r.chain.PostRaw(ctx, dataPath, []*Query{r.query},
		convention.Param("startTimestamp", strconv.FormatInt(since, 10)))
	if err != nil {
		var pe *convention.ProtocolError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("the server has thrown an exception, please check the input parameters: %w", err)
		}
		return nil, err
	}
	obj, ok := r.chain.ResourceFromReply(reply, "").(*resource.Object)
	if !ok || !obj.Has("map") {
		return nil, nil
	}
	byQuery, err := obj.ObjectField("map")
	if err != nil {
		return nil, err
	}
	entry, ok := byQuery.Field(r.query.ID)
	if !ok || entry == nil {
		return nil, nil
	}
	list, ok := entry.(*resource.List)
	if !ok {
		return nil, fmt.Errorf("stats data for query %s is %T, not a list", r.query.ID, entry)
	}
	ret := make([]*Snapshot, 0, list.Len())
	for _, item := range list.Objects() {
		s, err := newSnapshot(item, r.query)
		if err != nil {
			return nil, fmt.Errorf("malformed snapshot for query %s: %w", r.query.ID, err)
		}
		ret = append(ret, s)
	}
	return ret, nil
}

// Close stops the reader and deregisters its query. Any NextSnapshot waiting between polls
// returns ErrClosed at once; one in the middle of a round trip finishes it first. Once the
// query has been deregistered, later calls do nothing; if deregistration fails, the next call
// tries again.
func (r *Reader) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closed) })
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.deregistered {
		return nil
	}
	if _, err := r.chain.PostRaw(ctx, deregistrationPath, []*Query{r.query}); err != nil {
		return fmt.Errorf("could not deregister stats query %s: %w", r.query.ID, err)
	}
	r.deregistered = true
	r.logger.Printf("Deregistered stats query %s", r.query.ID)
	return nil
}
