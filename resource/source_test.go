package resource

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// fakeSource serves canned resources and records every call.
type fakeSource struct {
	resources map[string]string
	calls     []string
	bodies    []string
	lock      sync.Mutex
}

func newFakeSource() *fakeSource {
	return &fakeSource{resources: make(map[string]string)}
}

func (f *fakeSource) record(call string, body interface{}) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, call)
	if body != nil {
		data, _ := json.Marshal(body)
		f.bodies = append(f.bodies, string(data))
	}
}

func (f *fakeSource) count(call string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSource) GetResource(ctx context.Context, url string, params map[string]string) (interface{}, error) {
	f.record("GET "+url, nil)
	data, ok := f.resources[url]
	if !ok {
		return nil, errors.New("not found: " + url)
	}
	v, err := Parse([]byte(data))
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *Object:
		t.SetSource(NewLocation(f, url))
	case *List:
		t.SetSource(NewLocation(f, url))
	}
	return v, nil
}

func (f *fakeSource) PutResource(ctx context.Context, url string, body interface{}) error {
	f.record("PUT "+url, body)
	return nil
}

func (f *fakeSource) PatchResource(ctx context.Context, url string, body interface{}) error {
	f.record("PATCH "+url, body)
	return nil
}

func (f *fakeSource) DeleteResource(ctx context.Context, url string) error {
	f.record("DELETE "+url, nil)
	return nil
}
