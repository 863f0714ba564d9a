package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultUpdateBuffer = 16

// Callback receives each snapshot along with the one delivered before it, which is nil the
// first time.
type Callback func(a *AsyncReader, current, previous *Snapshot)

// Update is what an AsyncReader without a callback sends on its Updates channel.
type Update struct {
	Current  *Snapshot
	Previous *Snapshot
}

// AsyncReader pulls snapshots from a Reader on its own goroutine. With a callback, each
// snapshot is passed to it; without one, snapshots go to a bounded channel, and the reader
// waits while the channel is full.
type AsyncReader struct {
	reader    *Reader
	callback  Callback
	pollLimit int
	timeout   time.Duration
	updates   chan Update
	cancel    context.CancelFunc
	done      chan struct{}

	lock sync.Mutex
	err  error
}

type AsyncOption func(*AsyncReader)

// WithPollLimit stops the reader after n snapshots. Zero, the default, means no limit.
func WithPollLimit(n int) AsyncOption {
	return func(a *AsyncReader) { a.pollLimit = n }
}

// WithSnapshotTimeout sets how long to wait for each snapshot. The default is DefaultTimeout.
func WithSnapshotTimeout(d time.Duration) AsyncOption {
	return func(a *AsyncReader) { a.timeout = d }
}

// WithUpdateBuffer sets the capacity of the Updates channel.
func WithUpdateBuffer(n int) AsyncOption {
	return func(a *AsyncReader) {
		if a.callback == nil && n > 0 {
			a.updates = make(chan Update, n)
		}
	}
}

// NewAsyncReader starts reading from reader. If callback is nil, use Updates or Await to
// receive snapshots.
func NewAsyncReader(reader *Reader, callback Callback, opts ...AsyncOption) *AsyncReader {
	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncReader{
		reader:   reader,
		callback: callback,
		timeout:  DefaultTimeout,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if callback == nil {
		a.updates = make(chan Update, defaultUpdateBuffer)
	}
	for _, o := range opts {
		o(a)
	}
	go a.run(ctx)
	return a
}

func (a *AsyncReader) run(ctx context.Context) {
	defer close(a.done)
	if a.updates != nil {
		defer close(a.updates)
	}
	var previous *Snapshot
	for count := 0; a.pollLimit <= 0 || count < a.pollLimit; count++ {
		current, err := a.reader.NextSnapshot(ctx, a.timeout)
		if a.reader.Closed() || errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			a.fail(err)
			return
		}
		if err := a.deliver(ctx, current, previous); err != nil {
			if !errors.Is(err, ErrClosed) {
				a.fail(err)
			}
			return
		}
		previous = current
	}
}

func (a *AsyncReader) deliver(ctx context.Context, current, previous *Snapshot) (err error) {
	if a.callback != nil {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("stats callback for query %s panicked: %v", a.reader.query.ID, p)
			}
		}()
		a.callback(a, current, previous)
		return nil
	}
	select {
	case a.updates <- Update{Current: current, Previous: previous}:
		return nil
	case <-a.reader.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncReader) fail(err error) {
	a.reader.logger.Printf("Stats reader for query %s stopped: %s", a.reader.query.ID, err)
	a.lock.Lock()
	a.err = err
	a.lock.Unlock()
}

func (a *AsyncReader) Reader() *Reader { return a.reader }

// Updates is the snapshot channel. It is nil when a callback was given, and is closed when
// the reader stops.
func (a *AsyncReader) Updates() <-chan Update { return a.updates }

// Await waits for the next update on the Updates channel. It returns a *TimeoutError if none
// arrives within timeout.
func (a *AsyncReader) Await(timeout time.Duration) (Update, error) {
	if a.updates == nil {
		return Update{}, errors.New("snapshots are delivered to the callback")
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case u, ok := <-a.updates:
		if !ok {
			if err := a.Err(); err != nil {
				return Update{}, err
			}
			return Update{}, ErrClosed
		}
		return u, nil
	case <-deadline.C:
		return Update{}, &TimeoutError{QueryID: a.reader.query.ID, Timeout: timeout}
	}
}

// Err returns the error that stopped the reader, if any. Closing the reader is not an error.
func (a *AsyncReader) Err() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.err
}

// Done is closed when the reading goroutine has exited.
func (a *AsyncReader) Done() <-chan struct{} { return a.done }

func (a *AsyncReader) Alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

func (a *AsyncReader) Closed() bool { return a.reader.Closed() }

// Wait blocks until the reading goroutine exits and returns Err.
func (a *AsyncReader) Wait() error {
	<-a.done
	return a.Err()
}

// Close closes the underlying Reader, deregistering the query, and waits for the reading
// goroutine to exit. It returns only the deregistration error; use Err for the reader's own.
// A callback that wants to stop reading should close Reader() instead, since Close waits for
// the callback to return.
func (a *AsyncReader) Close(ctx context.Context) error {
	err := a.reader.Close(ctx)
	a.cancel()
	<-a.done
	return err
}
