package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/hypermedia-lab/labclient/resource"
)

var (
	// ErrClosed is returned by a Reader once Close has been called.
	ErrClosed = errors.New("stats reader is closed")

	// ErrStatsTimeout matches a TimeoutError.
	ErrStatsTimeout = errors.New("timed out waiting for stats")
)

// TimeoutError means no snapshot arrived for a query within the allowed time. It also
// matches resource.ErrTimeout.
type TimeoutError struct {
	QueryID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout while trying to get values for queryId:%s (waited %s)", e.QueryID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrStatsTimeout || target == resource.ErrTimeout
}
