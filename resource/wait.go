package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/hypermedia-lab/labclient/logging"
)

const defaultWaitInterval = time.Second

// WaitOptions tunes WaitForProperty. The zero value polls once per second with no timeout.
type WaitOptions struct {
	// Valid, if not empty, lists the only values the field may take while waiting.
	Valid []string
	// Invalid lists values that abort the wait.
	Invalid  []string
	Timeout  time.Duration
	Interval time.Duration
	Logger   logging.Logger
}

// Refresher is anything that can be reloaded from the server and then read locally; *Object
// implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
	Field(name string) (interface{}, bool)
}

// WaitForProperty refreshes obj until the named field takes one of targets. Values are compared
// by their text form.
func WaitForProperty(ctx context.Context, obj Refresher, name string, targets []string, opts WaitOptions) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultWaitInterval
	}
	logger := logging.OrNull(opts.Logger)
	start := time.Now()
	for {
		if err := obj.Refresh(ctx); err != nil {
			return err
		}
		value, _ := obj.Field(name)
		text := ValueText(value)
		logger.Printf("property %s = %s", name, text)
		if contains(targets, text) {
			return nil
		}
		if (len(opts.Valid) > 0 && !contains(opts.Valid, text)) || contains(opts.Invalid, text) {
			return &InvalidValueError{Name: InternalName(name), Value: value}
		}
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return &WaitTimeoutError{Name: InternalName(name), Targets: targets, Last: value}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// CheckForPropertyValue reports whether the field currently has one of expected, optionally
// refreshing first.
func CheckForPropertyValue(ctx context.Context, obj Refresher, name string, expected []string, refresh bool) (bool, error) {
	if refresh {
		if err := obj.Refresh(ctx); err != nil {
			return false, err
		}
	}
	value, _ := obj.Field(name)
	return contains(expected, ValueText(value)), nil
}

// ValueText is the text form of a field value, as used for comparisons and table output.
func ValueText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
