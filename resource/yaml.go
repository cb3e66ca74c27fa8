package resource

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxAliasDepth bounds how many aliases may be followed inside one another
// while converting a YAML tree. Plain nesting is not limited.
const maxAliasDepth = 64

// ParseYAML parses a YAML resource document. The root must be a mapping;
// key order is preserved. Plain and quoted scalars resolving to strings are
// leaves; null, bool, int, float and sequences are unsupported values.
// Aliases are expanded and merge keys (<<) are applied, explicit keys
// taking precedence over merged ones.
func ParseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, fmt.Errorf("parsing YAML: %w", err)
	}

	// Comment-only document.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return Node(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return Value{}, fmt.Errorf("parsing YAML: root must be a mapping, got kind %d", root.Kind)
	}
	return convertYAML(root, 0)
}

func convertYAML(n *yaml.Node, aliases int) (Value, error) {
	switch n.Kind {
	case yaml.MappingNode:
		return convertMapping(n, aliases)
	case yaml.ScalarNode:
		switch tag := n.ShortTag(); tag {
		case "!!str":
			return Leaf(n.Value), nil
		case "!!int", "!!float":
			return Other("number"), nil
		case "!!bool":
			return Other("boolean"), nil
		case "!!null":
			return Other("null"), nil
		default:
			return Other(strings.TrimPrefix(tag, "!!")), nil
		}
	case yaml.SequenceNode:
		return Other("array"), nil
	case yaml.AliasNode:
		target, depth, err := resolveAlias(n, aliases)
		if err != nil {
			return Value{}, err
		}
		if target == nil {
			return Other("alias"), nil
		}
		return convertYAML(target, depth)
	}
	return Other("unknown"), nil
}

func convertMapping(n *yaml.Node, aliases int) (Value, error) {
	explicit := make(map[string]bool, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i]; !isMergeKey(k) {
			explicit[k.Value] = true
		}
	}

	members := make([]Member, 0, len(n.Content)/2)
	merged := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		if isMergeKey(keyNode) {
			from, err := mergeSources(valNode, aliases)
			if err != nil {
				return Value{}, err
			}
			for _, m := range from {
				if explicit[m.Key] || merged[m.Key] {
					continue
				}
				merged[m.Key] = true
				members = append(members, m)
			}
			continue
		}
		if keyNode.Kind != yaml.ScalarNode {
			return Value{}, fmt.Errorf("parsing YAML: line %d: mapping keys must be scalars", keyNode.Line)
		}
		v, err := convertYAML(valNode, aliases)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: keyNode.Value, Value: v})
	}
	return Node(members...), nil
}

// mergeSources returns the members contributed by a merge key value: one
// mapping or a sequence of mappings, earlier mappings first.
func mergeSources(n *yaml.Node, aliases int) ([]Member, error) {
	var sources []*yaml.Node
	switch n.Kind {
	case yaml.SequenceNode:
		sources = n.Content
	default:
		sources = []*yaml.Node{n}
	}

	var out []Member
	for _, src := range sources {
		target, depth, err := resolveAlias(src, aliases)
		if err != nil {
			return nil, err
		}
		if target == nil || target.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("parsing YAML: line %d: merge value must be a mapping or a list of mappings", src.Line)
		}
		v, err := convertMapping(target, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Members...)
	}
	return out, nil
}

// resolveAlias follows n through any chain of aliases.
func resolveAlias(n *yaml.Node, aliases int) (*yaml.Node, int, error) {
	for n != nil && n.Kind == yaml.AliasNode {
		aliases++
		if aliases > maxAliasDepth {
			return nil, 0, fmt.Errorf("parsing YAML: line %d: aliases nested deeper than %d levels", n.Line, maxAliasDepth)
		}
		n = n.Alias
	}
	return n, aliases, nil
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!merge"
}
