package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML catalog. name labels error positions.
func ParseYAML(data []byte, name string) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, ErrInvalidCatalog, err)
	}
	if doc.Kind == 0 {
		return &Catalog{Source: name}, nil
	}
	var root any
	if err := doc.Decode(&root); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, ErrInvalidCatalog, err)
	}
	d := &decoder{locate: func(p Path) Position { return yamlPosition(&doc, p, name) }}
	return d.catalog(root, name)
}

// yamlPosition finds the node at p, or the deepest existing ancestor.
// A path ending in a mapping key resolves to the key itself.
func yamlPosition(doc *yaml.Node, p Path, file string) Position {
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for i, el := range p {
		key, value := yamlChild(n, el)
		if value == nil {
			break
		}
		n = value
		if key != nil && i == len(p)-1 {
			n = key
		}
	}
	return Position{File: file, Line: n.Line, Column: n.Column}
}

func yamlChild(n *yaml.Node, el any) (key, value *yaml.Node) {
	switch k := el.(type) {
	case string:
		if n.Kind != yaml.MappingNode {
			return nil, nil
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == k {
				return n.Content[i], n.Content[i+1]
			}
		}
	case int:
		if n.Kind == yaml.SequenceNode && k >= 0 && k < len(n.Content) {
			return nil, n.Content[k]
		}
	}
	return nil, nil
}
