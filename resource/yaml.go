package resource

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders the object as an ordered YAML mapping with wire field names.
func (o *Object) MarshalYAML() (interface{}, error) {
	return toYAMLNode(o)
}

func (l *List) MarshalYAML() (interface{}, error) {
	return toYAMLNode(l)
}

func toYAMLNode(v interface{}) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.keys {
			child, err := toYAMLNode(t.fields[k])
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: WireName(k)},
				child)
		}
		return n, nil
	case *List:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range t.items {
			child, err := toYAMLNode(it)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(string(t), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(t)}, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}
