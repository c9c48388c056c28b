// Package index reads and writes the declarative artifact index file
// (artifacts.yaml). The on-disk shape is a mapping from artifact name
// to metadata; the legacy list form is accepted on read and converted.
// Unknown keys are preserved under Custom so forward-compatible
// additions survive a rewrite.
package index

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
)

// Artifact is one row of the index.
type Artifact struct {
	Type        string         `yaml:"type,omitempty"`
	Path        string         `yaml:"path,omitempty"`
	Virtual     bool           `yaml:"virtual"`
	Labels      []string       `yaml:"labels,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Custom      map[string]any `yaml:"-"`
}

// Index maps artifact name to its metadata.
type Index map[string]Artifact

// knownKeys are the index row fields with dedicated struct fields;
// everything else lands in Custom.
var knownKeys = map[string]bool{
	"type": true, "path": true, "virtual": true,
	"labels": true, "description": true, "name": true,
}

// Parse decodes index file content. Both the flat mapping form and the
// legacy list form ([{name, type, path, ...}, ...]) are accepted; empty
// content yields an empty index.
func Parse(data []byte) (Index, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "malformed index file")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Index{}, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.MappingNode:
		return parseMapping(root)
	case yaml.SequenceNode:
		return parseLegacyList(root)
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return Index{}, nil
		}
	}
	return nil, errs.New(errs.KindValidation, "index file must be a mapping of artifact names")
}

func parseMapping(root *yaml.Node) (Index, error) {
	idx := make(Index, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		if !event.ValidName(name) {
			return nil, errs.New(errs.KindValidation, "invalid artifact name %q in index", name).WithInput(name)
		}
		art, err := parseRow(valNode)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", name, err)
		}
		idx[name] = art
	}
	return idx, nil
}

func parseLegacyList(root *yaml.Node) (Index, error) {
	idx := make(Index, len(root.Content))
	for _, item := range root.Content {
		if item.Kind != yaml.MappingNode {
			return nil, errs.New(errs.KindValidation, "legacy index entries must be mappings")
		}
		var name string
		for i := 0; i+1 < len(item.Content); i += 2 {
			if item.Content[i].Value == "name" {
				name = item.Content[i+1].Value
			}
		}
		if !event.ValidName(name) {
			return nil, errs.New(errs.KindValidation, "legacy index entry without a valid name").WithInput(name)
		}
		art, err := parseRow(item)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", name, err)
		}
		idx[name] = art
	}
	return idx, nil
}

func parseRow(node *yaml.Node) (Artifact, error) {
	// The registry does not pin content by default: virtual is true
	// unless the row says otherwise.
	art := Artifact{Virtual: true}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return art, nil
	}
	if node.Kind != yaml.MappingNode {
		return art, errs.New(errs.KindValidation, "index row must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "name":
			// carried by the mapping key in the flat form
		case "type":
			art.Type = val.Value
		case "path":
			art.Path = val.Value
		case "virtual":
			if err := val.Decode(&art.Virtual); err != nil {
				return art, errs.Wrap(errs.KindValidation, err, "virtual must be a boolean")
			}
		case "labels":
			if err := val.Decode(&art.Labels); err != nil {
				return art, errs.Wrap(errs.KindValidation, err, "labels must be a list of strings")
			}
		case "description":
			art.Description = val.Value
		default:
			if art.Custom == nil {
				art.Custom = map[string]any{}
			}
			var v any
			if err := val.Decode(&v); err != nil {
				return art, errs.Wrap(errs.KindValidation, err, "cannot decode key %q", key)
			}
			art.Custom[key] = v
		}
	}
	return art, nil
}

// Marshal renders the index in the flat mapping form with deterministic
// key order: artifact names sorted, known fields first, custom keys
// sorted after.
func Marshal(idx Index) ([]byte, error) {
	if len(idx) == 0 {
		return []byte("{}\n"), nil
	}
	root := &yaml.Node{Kind: yaml.MappingNode}
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row, err := marshalRow(idx[name])
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", name, err)
		}
		root.Content = append(root.Content,
			scalarNode(name),
			row,
		)
	}
	return yaml.Marshal(root)
}

func marshalRow(art Artifact) (*yaml.Node, error) {
	row := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			return err
		}
		row.Content = append(row.Content, scalarNode(key), valNode)
		return nil
	}
	if art.Type != "" {
		if err := add("type", art.Type); err != nil {
			return nil, err
		}
	}
	if art.Path != "" {
		if err := add("path", art.Path); err != nil {
			return nil, err
		}
	}
	if err := add("virtual", art.Virtual); err != nil {
		return nil, err
	}
	if len(art.Labels) > 0 {
		if err := add("labels", art.Labels); err != nil {
			return nil, err
		}
	}
	if art.Description != "" {
		if err := add("description", art.Description); err != nil {
			return nil, err
		}
	}
	customKeys := make([]string, 0, len(art.Custom))
	for k := range art.Custom {
		customKeys = append(customKeys, k)
	}
	sort.Strings(customKeys)
	for _, k := range customKeys {
		if err := add(k, art.Custom[k]); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func scalarNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
