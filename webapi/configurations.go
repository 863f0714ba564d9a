package webapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/hypermedia-lab/labclient/convention"
	"github.com/hypermedia-lab/labclient/resource"
	"github.com/hypermedia-lab/labclient/servicedef"
)

const importFormField = "fileId"

// Configurations lists the saved configurations for a session type.
func (c *Connection) Configurations(ctx context.Context, sessionType string) (*resource.List, error) {
	if sessionType == "" {
		return nil, required("sessionType")
	}
	v, err := c.chain.Get(ctx, fmt.Sprintf("configurations/%s", sessionType))
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return resource.NewList(), nil
	case *resource.List:
		return t, nil
	}
	return nil, fmt.Errorf("configurations for %s returned %T, not a list", sessionType, v)
}

// FindConfiguration returns the configuration called name. It fails with an error matching
// ErrNoSuchConfiguration if there is none.
func (c *Connection) FindConfiguration(ctx context.Context, sessionType, name string) (*resource.Object, error) {
	if name == "" {
		return nil, required("configName")
	}
	configs, err := c.Configurations(ctx, sessionType)
	if err != nil {
		return nil, err
	}
	for _, config := range configs.Objects() {
		if n, err := config.StringField("name"); err == nil && n == name {
			return config, nil
		}
	}
	return nil, fmt.Errorf("%w: %s configuration '%s'", ErrNoSuchConfiguration, sessionType, name)
}

// ExportConfiguration writes the exported form of a configuration to w.
func (c *Connection) ExportConfiguration(ctx context.Context, sessionType string, id int64, w io.Writer) (int64, error) {
	if sessionType == "" {
		return 0, required("sessionType")
	}
	return c.chain.Download(ctx, fmt.Sprintf("configurations/%s/%d/export", sessionType, id), w)
}

// ImportConfiguration uploads a previously exported configuration. It returns the server's
// description of the imported configuration.
func (c *Connection) ImportConfiguration(ctx context.Context, sessionType, fileName string, r io.Reader) (interface{}, error) {
	if sessionType == "" {
		return nil, required("sessionType")
	}
	if r == nil {
		return nil, required("importFile")
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile(importFormField, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("cannot read configuration to import: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("configurations/%s/import", sessionType)
	reply, err := c.chain.Request(ctx, convention.Request{
		Method:  http.MethodPost,
		URL:     url,
		Body:    buf.Bytes(),
		Headers: map[string]string{contentTypeHeader: form.FormDataContentType()},
	})
	if err != nil {
		return nil, err
	}
	return c.chain.ResourceFromReply(reply, reply.Location()), nil
}

// DeleteConfiguration deletes a saved configuration by id.
func (c *Connection) DeleteConfiguration(ctx context.Context, sessionType string, id int64) error {
	if sessionType == "" {
		return required("sessionType")
	}
	_, err := c.chain.Request(ctx, convention.Request{
		Method: http.MethodDelete,
		URL:    fmt.Sprintf("configurations/%s/%d", sessionType, id),
		Body:   servicedef.CreateSessionParams{ApplicationType: sessionType},
	})
	return err
}
