package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequenceRefresher struct {
	values []string
	obj    *Object
	calls  int
}

func (s *sequenceRefresher) Refresh(ctx context.Context) error {
	i := s.calls
	if i >= len(s.values) {
		i = len(s.values) - 1
	}
	s.calls++
	s.obj = NewObject(F("state", s.values[i]))
	return nil
}

func (s *sequenceRefresher) Field(name string) (interface{}, bool) {
	return s.obj.Field(name)
}

func TestWaitForPropertyReachesTarget(t *testing.T) {
	r := &sequenceRefresher{values: []string{"Starting", "Starting", "Running"}}
	err := WaitForProperty(context.Background(), r, "state", []string{"Running"},
		WaitOptions{Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 3, r.calls)
}

func TestWaitForPropertyInvalidValue(t *testing.T) {
	r := &sequenceRefresher{values: []string{"Starting", "Error"}}
	err := WaitForProperty(context.Background(), r, "state", []string{"Running"},
		WaitOptions{Interval: time.Millisecond, Invalid: []string{"Error"}})
	var invalid *InvalidValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "Error", invalid.Value)

	r = &sequenceRefresher{values: []string{"Starting", "Weird"}}
	err = WaitForProperty(context.Background(), r, "state", []string{"Running"},
		WaitOptions{Interval: time.Millisecond, Valid: []string{"Starting", "Running"}})
	assert.True(t, errors.As(err, &invalid))
}

func TestWaitForPropertyTimeout(t *testing.T) {
	r := &sequenceRefresher{values: []string{"Starting"}}
	err := WaitForProperty(context.Background(), r, "state", []string{"Running"},
		WaitOptions{Interval: time.Millisecond, Timeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCheckForPropertyValue(t *testing.T) {
	r := &sequenceRefresher{values: []string{"Running"}}
	ok, err := CheckForPropertyValue(context.Background(), r, "state", []string{"Running", "Stopped"}, true)
	require.NoError(t, err)
	assert.True(t, ok)
}
