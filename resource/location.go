package resource

import (
	"context"
)

// Source performs the server round trips a resource needs. It is implemented by a
// convention.Chain scope, so every proxy talks to the server through the scope that fetched it.
type Source interface {
	GetResource(ctx context.Context, url string, params map[string]string) (interface{}, error)
	PutResource(ctx context.Context, url string, body interface{}) error
	PatchResource(ctx context.Context, url string, body interface{}) error
	DeleteResource(ctx context.Context, url string) error
}

// linkParams are sent when expanding a link relation, so that the target comes back with its
// own links and without embedded sub-resources.
var linkParams = map[string]string{"links": "true", "embedded": "false"}

// Location is where a resource lives: a Source and a URL that is resolved through it. A
// Location never changes after construction.
type Location struct {
	source Source
	url    string
}

// NewLocation returns a Location, or nil if source is nil.
func NewLocation(source Source, url string) *Location {
	if source == nil {
		return nil
	}
	return &Location{source: source, url: url}
}

func (l *Location) URL() string    { return l.url }
func (l *Location) Source() Source { return l.source }
func (l *Location) String() string { return l.url }

// At returns a Location for another URL on the same Source.
func (l *Location) At(url string) *Location {
	return &Location{source: l.source, url: url}
}

func (l *Location) Get(ctx context.Context) (interface{}, error) {
	return l.source.GetResource(ctx, l.url, nil)
}

// GetProperty fetches the target of a link relation found on the resource at this location.
func (l *Location) GetProperty(ctx context.Context, href string) (interface{}, error) {
	return l.source.GetResource(ctx, href, linkParams)
}

func (l *Location) Put(ctx context.Context, body interface{}) error {
	return l.source.PutResource(ctx, l.url, body)
}

func (l *Location) Patch(ctx context.Context, body interface{}) error {
	return l.source.PatchResource(ctx, l.url, body)
}

func (l *Location) Delete(ctx context.Context) error {
	return l.source.DeleteResource(ctx, l.url)
}
