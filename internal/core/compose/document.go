package compose

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Serialization
// =============================================================================

// Marshal serializes the document as YAML.
//
// Top-level keys are written in the order version, services, networks,
// volumes. Services keep insertion order. Every "$" in the output is
// doubled so the orchestration tool does not treat it as a variable
// reference.
//
// Example:
//
//	doc := compose.NewDocument()
//	doc.Services.Set("web", &compose.Service{Image: "nginx"})
//	out, _ := compose.Marshal(doc)
//	// version: "3.6"
//	// services:
//	//   web:
//	//     image: nginx
//	// networks: {}
//	// volumes: {}
func Marshal(doc *Document) ([]byte, error) {
	root, err := doc.node()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, NewParseError("", "failed to encode document", err)
	}
	if err := enc.Close(); err != nil {
		return nil, NewParseError("", "failed to encode document", err)
	}

	return []byte(EscapeDollars(buf.String())), nil
}

// EscapeDollars doubles every "$" in s.
func EscapeDollars(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func (d *Document) node() (*yaml.Node, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	version := d.Version
	if version == "" {
		version = Version
	}
	if err := appendEntry(root, "version", version); err != nil {
		return nil, err
	}

	services := &yaml.Node{Kind: yaml.MappingNode}
	if d.Services != nil {
		for _, name := range d.Services.names {
			if err := appendEntry(services, name, d.Services.services[name]); err != nil {
				return nil, NewParseError("services."+name, "failed to encode service", err)
			}
		}
	}
	root.Content = append(root.Content, scalar("services"), services)

	networks := d.Networks
	if networks == nil {
		networks = map[string]Network{}
	}
	if err := appendEntry(root, "networks", networks); err != nil {
		return nil, err
	}

	volumes := d.Volumes
	if volumes == nil {
		volumes = map[string]Volume{}
	}
	if err := appendEntry(root, "volumes", volumes); err != nil {
		return nil, err
	}

	return root, nil
}

func appendEntry(mapping *yaml.Node, key string, value interface{}) error {
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return err
	}
	mapping.Content = append(mapping.Content, scalar(key), &v)
	return nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
