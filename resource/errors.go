package resource

import (
	"errors"
	"fmt"
)

// ErrNoSource is returned by any server round trip on a resource that has no Location, either
// because it was built locally or because it has been deleted.
var ErrNoSource = errors.New("resource has no source location")

// ErrTimeout is matched by every timeout error raised while waiting on the server.
var ErrTimeout = errors.New("timed out")

// FieldNotFoundError means an object has neither a field nor a link relation with that name.
type FieldNotFoundError struct {
	Name string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("object has no field or link named %q", WireName(e.Name))
}

// LockedError is returned when assigning a field that does not exist on a locked object.
type LockedError struct {
	Name string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("cannot add field %q: object is locked", WireName(e.Name))
}

// FieldTypeError is returned by the typed field accessors.
type FieldTypeError struct {
	Name  string
	Want  string
	Value interface{}
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q requires %s, got %T: %v", WireName(e.Name), e.Want, e.Value, e.Value)
}

// ValidationError reports a bad argument detected before anything is changed or sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// WaitTimeoutError is returned by WaitForProperty when the deadline passes.
type WaitTimeoutError struct {
	Name    string
	Targets []string
	Last    interface{}
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s in %v (last value %v)", WireName(e.Name), e.Targets, e.Last)
}

func (e *WaitTimeoutError) Is(target error) bool { return target == ErrTimeout }

// InvalidValueError is returned by WaitForProperty when the field takes a value that can never
// lead to one of the targets.
type InvalidValueError struct {
	Name  string
	Value interface{}
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s has invalid value %v", WireName(e.Name), e.Value)
}
