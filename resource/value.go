// Package resource parses localized key/value resource files and flattens
// their nested content into dotted keys.
//
// A resource file is named <name>.<locale>.<ext> and holds a tree of objects
// whose leaves are strings:
//
//	{
//	    "home": {
//	        "title": "Start",
//	        "teaser": { "headline": "Willkommen" }
//	    }
//	}
//
// flattens to home.title=Start and home.teaser.headline=Willkommen. Leaves of
// any other type (numbers, booleans, null, arrays) are reported and skipped
// one key at a time; the rest of the file is still used.
package resource

// Kind tags the variant held by a Value.
type Kind uint8

const (
	// KindLeaf is a string leaf.
	KindLeaf Kind = iota
	// KindNode is an object with ordered members.
	KindNode
	// KindOther is any non-string scalar or a list.
	KindOther
)

// Value is a node of a parsed resource tree: Leaf(string) | Node(members) | Other(type).
type Value struct {
	Kind Kind
	// Text holds the string of a leaf.
	Text string
	// Members holds the children of a node in document order.
	Members []Member
	// Type names the unsupported type of an Other value (e.g. "number").
	Type string
}

// Member is one key/value pair of a node.
type Member struct {
	Key   string
	Value Value
}

// Leaf builds a string leaf.
func Leaf(s string) Value { return Value{Kind: KindLeaf, Text: s} }

// Node builds an object node.
func Node(members ...Member) Value { return Value{Kind: KindNode, Members: members} }

// Other builds an unsupported value of the named type.
func Other(typ string) Value { return Value{Kind: KindOther, Type: typ} }

// Pair is one flattened key and its string value.
type Pair struct {
	Key   string
	Value string
}

// Skip records a key dropped during flattening because its leaf is not a string.
type Skip struct {
	Key  string
	Type string
}

// Flatten walks v and returns every string leaf as a dotted key in document
// order, plus the keys whose leaves had an unsupported type.
func Flatten(v Value) ([]Pair, []Skip) {
	var pairs []Pair
	var skipped []Skip
	flatten(v, "", true, &pairs, &skipped)
	return pairs, skipped
}

func flatten(v Value, prefix string, root bool, pairs *[]Pair, skipped *[]Skip) {
	switch v.Kind {
	case KindNode:
		for _, m := range v.Members {
			key := m.Key
			if !root {
				key = prefix + "." + m.Key
			}
			flatten(m.Value, key, false, pairs, skipped)
		}
	case KindLeaf:
		*pairs = append(*pairs, Pair{Key: prefix, Value: v.Text})
	default:
		*skipped = append(*skipped, Skip{Key: prefix, Type: v.Type})
	}
}
