package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// FromValue converts a decoded value into the resource model: maps become locked objects,
// slices become lists, everything else is returned unchanged. Map keys are sorted, since Go
// maps carry no order; use Parse to keep the order of a JSON document.
func FromValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := newObject()
		for _, k := range keys {
			o.setField(InternalName(k), FromValue(t[k]))
		}
		o.locked = true
		return o
	case []interface{}:
		l := &List{items: make([]interface{}, 0, len(t))}
		for _, it := range t {
			l.items = append(l.items, FromValue(it))
		}
		return l
	case []string:
		l := &List{items: make([]interface{}, 0, len(t))}
		for _, it := range t {
			l.items = append(l.items, it)
		}
		return l
	case json.RawMessage:
		if parsed, err := Parse(t); err == nil {
			return parsed
		}
		return string(t)
	}
	return v
}

// Parse decodes a JSON document, keeping field order. Objects come back locked and numbers
// are json.Number.
func Parse(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		o := newObject()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", kt)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			o.setField(InternalName(key), v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		o.locked = true
		return o, nil
	case '[':
		l := &List{items: []interface{}{}}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			l.items = append(l.items, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}
