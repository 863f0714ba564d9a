package resource

import (
	"context"
	"encoding/json"
	"fmt"
)

// List is an ordered sequence of resource values. It grows only through Append/Insert (one
// item) or AppendObject/InsertObject (one object built from named fields).
type List struct {
	items  []interface{}
	source *Location
}

// NewList builds a list from items, converting each with FromValue.
func NewList(items ...interface{}) *List {
	l := &List{}
	for _, it := range items {
		l.items = append(l.items, FromValue(it))
	}
	return l
}

func (l *List) Len() int { return len(l.items) }

// At returns the i'th element. Like a slice index, it panics if i is out of range.
func (l *List) At(i int) interface{} { return l.items[i] }

// Items returns a copy of the elements.
func (l *List) Items() []interface{} {
	return append([]interface{}(nil), l.items...)
}

// Objects returns the elements that are objects, in order.
func (l *List) Objects() []*Object {
	var ret []*Object
	for _, it := range l.items {
		if o, ok := it.(*Object); ok {
			ret = append(ret, o)
		}
	}
	return ret
}

func (l *List) Set(i int, item interface{}) error {
	if i < 0 || i >= len(l.items) {
		return &ValidationError{Message: fmt.Sprintf("index %d out of range [0,%d)", i, len(l.items))}
	}
	l.items[i] = FromValue(item)
	return nil
}

// Append adds one item. A nil item is rejected; use AppendObject to add an object built from
// named fields.
func (l *List) Append(item interface{}) error {
	return l.Insert(len(l.items), item)
}

// AppendObject adds a locked object built from fields. At least one field is required.
func (l *List) AppendObject(fields ...Field) error {
	return l.InsertObject(len(l.items), fields...)
}

func (l *List) Insert(i int, item interface{}) error {
	if item == nil {
		return &ValidationError{Message: "either a single item or a set of named fields is required"}
	}
	return l.insert(i, FromValue(item))
}

func (l *List) InsertObject(i int, fields ...Field) error {
	if len(fields) == 0 {
		return &ValidationError{Message: "either a single item or a set of named fields is required"}
	}
	return l.insert(i, NewObject(fields...))
}

func (l *List) insert(i int, v interface{}) error {
	if i < 0 || i > len(l.items) {
		return &ValidationError{Message: fmt.Sprintf("insert index %d out of range [0,%d]", i, len(l.items))}
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
	return nil
}

func (l *List) Source() *Location { return l.source }

// SetSource sets the list's location. Every element that is an object with a "self" link gets
// its own location at that link on the same source; nothing changes for elements when loc is
// nil.
func (l *List) SetSource(loc *Location) {
	l.source = loc
	if loc == nil {
		return
	}
	for _, o := range l.Objects() {
		if self, ok := o.Link(selfWireName); ok {
			o.SetSource(loc.At(self.Href))
		}
	}
}

func (l *List) URL() (string, error) {
	if l.source == nil {
		return "", ErrNoSource
	}
	return l.source.URL(), nil
}

// Refresh replaces the elements with the current server content.
func (l *List) Refresh(ctx context.Context) error {
	if l.source == nil {
		return ErrNoSource
	}
	v, err := l.source.Get(ctx)
	if err != nil {
		return err
	}
	fresh, ok := v.(*List)
	if !ok {
		return fmt.Errorf("refresh of %s returned %T, not a list", l.source.URL(), v)
	}
	l.items = fresh.items
	l.SetSource(l.source)
	return nil
}

func (l *List) Put(ctx context.Context) error {
	if l.source == nil {
		return ErrNoSource
	}
	return l.source.Put(ctx, l)
}

func (l *List) Delete(ctx context.Context) error {
	if l.source == nil {
		return ErrNoSource
	}
	if err := l.source.Delete(ctx); err != nil {
		return err
	}
	l.source = nil
	return nil
}

func (l *List) MarshalJSON() ([]byte, error) {
	if l.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.items)
}

func (l *List) String() string {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Sprintf("<invalid list: %s>", err)
	}
	return string(data)
}
