package convention

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hypermedia-lab/labclient/resource"
)

func (c *Chain) do(ctx context.Context, method, url string, body interface{}, opts []RequestOption) (*Reply, error) {
	r := Request{Method: method, URL: url, Body: body}
	for _, o := range opts {
		o(&r)
	}
	return c.Request(ctx, r)
}

func (c *Chain) GetRaw(ctx context.Context, url string, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodGet, url, nil, opts)
}

// Get fetches url and returns it as a resource: an *resource.Object or *resource.List located
// at url, plain text if the body is not JSON, or nil if there is no body.
func (c *Chain) Get(ctx context.Context, url string, opts ...RequestOption) (interface{}, error) {
	reply, err := c.GetRaw(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	return c.ResourceFromReply(reply, url), nil
}

// GetObject is Get for resources that must be JSON objects.
func (c *Chain) GetObject(ctx context.Context, url string, opts ...RequestOption) (*resource.Object, error) {
	v, err := c.Get(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*resource.Object)
	if !ok {
		return nil, fmt.Errorf("GET '%s' returned %T, not an object", url, v)
	}
	return obj, nil
}

// GetList is Get for resources that must be JSON arrays.
func (c *Chain) GetList(ctx context.Context, url string, opts ...RequestOption) (*resource.List, error) {
	v, err := c.Get(ctx, url, opts...)
	if err != nil {
		return nil, err
	}
	list, ok := v.(*resource.List)
	if !ok {
		return nil, fmt.Errorf("GET '%s' returned %T, not a list", url, v)
	}
	return list, nil
}

func (c *Chain) PostRaw(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodPost, url, body, opts)
}

// Post sends body to url and returns the created or computed resource.
//
// A 202 reply starts a long-running operation, which is polled to completion; its result, if
// any, is then fetched. Otherwise a reply body is returned as a resource located at the
// Location header (or with no location), and an empty reply with a Location header is
// followed by a GET of that location.
func (c *Chain) Post(ctx context.Context, url string, body interface{}, opts ...RequestOption) (interface{}, error) {
	reply, err := c.PostRaw(ctx, url, body, opts...)
	if err != nil {
		return nil, err
	}
	switch {
	case reply.StatusCode == http.StatusAccepted:
		status, err := c.PollOperation(ctx, reply)
		if err != nil {
			return nil, err
		}
		if status.ResultURL == "" {
			return nil, nil
		}
		return c.fetchResult(ctx, status.ResultURL)
	case len(reply.Body) > 0:
		return c.ResourceFromReply(reply, reply.Location()), nil
	case reply.Location() != "":
		return c.Get(ctx, reply.Location())
	}
	return nil, nil
}

// Put sends body to url. Like Patch and Delete, it returns the raw reply.
func (c *Chain) Put(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodPut, url, body, opts)
}

func (c *Chain) Patch(ctx context.Context, url string, body interface{}, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodPatch, url, body, opts)
}

func (c *Chain) Delete(ctx context.Context, url string, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodDelete, url, nil, opts)
}

func (c *Chain) Head(ctx context.Context, url string, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodHead, url, nil, opts)
}

func (c *Chain) Options(ctx context.Context, url string, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodOptions, url, nil, opts)
}

func (c *Chain) Trace(ctx context.Context, url string, opts ...RequestOption) (*Reply, error) {
	return c.do(ctx, http.MethodTrace, url, nil, opts)
}

// ResourceFromReply converts a reply body to a resource. JSON objects and arrays are located
// at originalURL on this scope, unless originalURL is empty; a body that is not JSON is
// returned as a string, and an empty body as nil.
func (c *Chain) ResourceFromReply(reply *Reply, originalURL string) interface{} {
	if len(reply.Body) == 0 {
		return nil
	}
	v, err := resource.Parse(reply.Body)
	if err != nil {
		return reply.Text()
	}
	var loc *resource.Location
	if originalURL != "" {
		loc = resource.NewLocation(c, originalURL)
	}
	switch t := v.(type) {
	case *resource.Object:
		t.SetSource(loc)
	case *resource.List:
		t.SetSource(loc)
	}
	return v
}

// fetchResult reads the result of a finished operation. The result is located at resultURL,
// where it can be read again, not at the URL that started the operation.
func (c *Chain) fetchResult(ctx context.Context, resultURL string) (interface{}, error) {
	reply, err := c.GetRaw(ctx, resultURL)
	if err != nil {
		return nil, err
	}
	return c.ResourceFromReply(reply, resultURL), nil
}

// GetResource, PutResource, PatchResource and DeleteResource make a Chain a resource.Source.

func (c *Chain) GetResource(ctx context.Context, url string, params map[string]string) (interface{}, error) {
	return c.Get(ctx, url, Params(params))
}

func (c *Chain) PutResource(ctx context.Context, url string, body interface{}) error {
	_, err := c.Put(ctx, url, body)
	return err
}

func (c *Chain) PatchResource(ctx context.Context, url string, body interface{}) error {
	_, err := c.Patch(ctx, url, body)
	return err
}

func (c *Chain) DeleteResource(ctx context.Context, url string) error {
	_, err := c.Delete(ctx, url)
	return err
}

var _ resource.Source = (*Chain)(nil)
