package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Field is a name/value pair used to build objects locally.
type Field struct {
	Name  string
	Value interface{}
}

// F is shorthand for Field{name, value}.
func F(name string, value interface{}) Field {
	return Field{Name: name, Value: value}
}

// Object is an ordered set of named fields. Field values are nil, bool, json.Number (or any
// other number type when set locally), string, *Object or *List.
//
// Once locked, assigning a field that does not already exist fails with a LockedError;
// existing fields can always be reassigned. Objects are not safe for concurrent mutation.
type Object struct {
	keys   []string
	fields map[string]interface{}
	locked bool
	source *Location
}

func newObject() *Object {
	return &Object{fields: make(map[string]interface{})}
}

// NewObject builds a locked object with the given fields in order. It has no source until
// SetSource is called.
func NewObject(fields ...Field) *Object {
	o := newObject()
	for _, f := range fields {
		o.setField(InternalName(f.Name), FromValue(f.Value))
	}
	o.locked = true
	return o
}

func (o *Object) setField(name string, value interface{}) {
	if _, ok := o.fields[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.fields[name] = value
}

func (o *Object) removeField(name string) bool {
	if _, ok := o.fields[name]; !ok {
		return false
	}
	delete(o.fields, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// materialize stores a fetched link target as a regular field, bypassing the lock.
func (o *Object) materialize(name string, value interface{}) {
	wasLocked := o.locked
	o.locked = false
	defer func() { o.locked = wasLocked }()
	o.setField(name, value)
}

// Field returns a field that is already present. It never contacts the server.
func (o *Object) Field(name string) (interface{}, bool) {
	v, ok := o.fields[InternalName(name)]
	return v, ok
}

func (o *Object) Has(name string) bool {
	_, ok := o.fields[InternalName(name)]
	return ok
}

// Get returns the named field. If there is no such field but the object has a source and a
// link relation with that name, the link target is fetched once, stored as a field and
// returned; later calls return the stored value until Refresh.
func (o *Object) Get(ctx context.Context, name string) (interface{}, error) {
	name = InternalName(name)
	if v, ok := o.fields[name]; ok {
		return v, nil
	}
	if o.source != nil {
		if link, ok := o.linkFor(name); ok {
			v, err := o.source.GetProperty(ctx, link.Href)
			if err != nil {
				return nil, err
			}
			o.materialize(name, v)
			return v, nil
		}
	}
	return nil, &FieldNotFoundError{Name: name}
}

// Set assigns a field. The value goes through FromValue, so plain maps and slices are
// accepted.
func (o *Object) Set(name string, value interface{}) error {
	name = InternalName(name)
	if _, ok := o.fields[name]; !ok && o.locked {
		return &LockedError{Name: name}
	}
	o.setField(name, FromValue(value))
	return nil
}

// Remove deletes a field and reports whether it existed.
func (o *Object) Remove(name string) bool {
	return o.removeField(InternalName(name))
}

func (o *Object) Lock()        { o.locked = true }
func (o *Object) Unlock()      { o.locked = false }
func (o *Object) Locked() bool { return o.locked }

// Keys returns the field names in order, using their stored names.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *Object) Len() int { return len(o.keys) }

func (o *Object) Source() *Location { return o.source }

func (o *Object) SetSource(l *Location) { o.source = l }

// URL returns the URL of the object's source.
func (o *Object) URL() (string, error) {
	if o.source == nil {
		return "", ErrNoSource
	}
	return o.source.URL(), nil
}

// TypeTag returns the value of the "$type" field, or "" if there is none.
func (o *Object) TypeTag() string {
	s, _ := o.fields[typeInternalName].(string)
	return s
}

func (o *Object) SetTypeTag(tag string) error {
	return o.Set(typeWireName, tag)
}

// Refresh reloads the object from its source. Fields that were materialized from links are
// dropped first so that the next access fetches them again.
func (o *Object) Refresh(ctx context.Context) error {
	if o.source == nil {
		return ErrNoSource
	}
	v, err := o.source.Get(ctx)
	if err != nil {
		return err
	}
	fresh, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("refresh of %s returned %T, not an object", o.source.URL(), v)
	}
	for _, l := range o.Links() {
		if name := InternalName(l.Rel); name != "links" {
			o.removeField(name)
		}
	}
	for _, k := range fresh.keys {
		o.setField(k, fresh.fields[k])
	}
	return nil
}

// Put writes the whole object back to its source.
func (o *Object) Put(ctx context.Context) error {
	if o.source == nil {
		return ErrNoSource
	}
	return o.source.Put(ctx, o)
}

// Patch sends the object to its source as a partial update.
func (o *Object) Patch(ctx context.Context) error {
	if o.source == nil {
		return ErrNoSource
	}
	return o.source.Patch(ctx, o)
}

// Delete deletes the object on the server and clears its source.
func (o *Object) Delete(ctx context.Context) error {
	if o.source == nil {
		return ErrNoSource
	}
	if err := o.source.Delete(ctx); err != nil {
		return err
	}
	o.source = nil
	return nil
}

// StringField returns a string field without contacting the server.
func (o *Object) StringField(name string) (string, error) {
	v, err := o.localField(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldTypeError{Name: InternalName(name), Want: "a string", Value: v}
	}
	return s, nil
}

// IntField returns an integer field. Integral floating-point values such as 100.0 are accepted.
func (o *Object) IntField(name string) (int64, error) {
	v, err := o.localField(name)
	if err != nil {
		return 0, err
	}
	if n, ok := toInt64(v); ok {
		return n, nil
	}
	return 0, &FieldTypeError{Name: InternalName(name), Want: "an integer", Value: v}
}

func (o *Object) FloatField(name string) (float64, error) {
	v, err := o.localField(name)
	if err != nil {
		return 0, err
	}
	if f, ok := toFloat64(v); ok {
		return f, nil
	}
	return 0, &FieldTypeError{Name: InternalName(name), Want: "a number", Value: v}
}

func (o *Object) BoolField(name string) (bool, error) {
	v, err := o.localField(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &FieldTypeError{Name: InternalName(name), Want: "a boolean", Value: v}
	}
	return b, nil
}

func (o *Object) ObjectField(name string) (*Object, error) {
	v, err := o.localField(name)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, &FieldTypeError{Name: InternalName(name), Want: "an object", Value: v}
	}
	return obj, nil
}

func (o *Object) ListField(name string) (*List, error) {
	v, err := o.localField(name)
	if err != nil {
		return nil, err
	}
	l, ok := v.(*List)
	if !ok {
		return nil, &FieldTypeError{Name: InternalName(name), Want: "a list", Value: v}
	}
	return l, nil
}

func (o *Object) localField(name string) (interface{}, error) {
	name = InternalName(name)
	v, ok := o.fields[name]
	if !ok {
		return nil, &FieldNotFoundError{Name: name}
	}
	return v, nil
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(WireName(k))
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", WireName(k), err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the compact JSON form.
func (o *Object) String() string {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("<invalid object: %s>", err)
	}
	return string(data)
}

// Pretty returns indented JSON.
func (o *Object) Pretty() string {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Sprintf("<invalid object: %s>", err)
	}
	return string(data)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
