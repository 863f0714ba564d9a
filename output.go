package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hypermedia-lab/labclient/resource"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

// render writes a value returned by the lab in the requested format.
func render(w io.Writer, v interface{}, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatText:
		_, err := fmt.Fprintln(w, resource.ValueText(v))
		return err
	default:
		return fmt.Errorf("unknown output format %q, expected json, yaml or text", format)
	}
}
