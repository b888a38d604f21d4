// Package config provides typed access to the resolved YAML configuration
// tree consumed by the image composition engine. Every node carries its
// source location so that configuration errors point at the offending line.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Location identifies a position in a configuration file.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d, column %d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Error is a fatal configuration error: malformed value, wrong node kind or
// a missing mandatory field. It carries the location of the offending node.
type Error struct {
	Msg string
	Loc Location
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s)", e.Msg, e.Loc)
}

// NewError creates a configuration error bound to a node location.
func NewError(loc Location, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// Node wraps a yaml.Node with typed accessors. The zero value is not usable;
// nodes are obtained from Load or by traversing an existing node.
type Node struct {
	yn   *yaml.Node
	file string
}

// Load parses a YAML file and returns its root mapping node.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses YAML from memory. The name is used in error locations.
func Parse(data []byte, name string) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", name, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &Error{Msg: "empty configuration document", Loc: Location{File: name}}
	}
	return &Node{yn: doc.Content[0], file: name}, nil
}

// Location returns the source position of the node.
func (n *Node) Location() Location {
	return Location{File: n.file, Line: n.yn.Line, Column: n.yn.Column}
}

// IsMapping reports whether the node is a YAML mapping.
func (n *Node) IsMapping() bool {
	return n.yn.Kind == yaml.MappingNode
}

// Get returns the child with the given key from a mapping node, or nil if
// the key is absent. Calling Get on a non-mapping node is an error.
func (n *Node) Get(key string) (*Node, error) {
	if n.yn.Kind != yaml.MappingNode {
		return nil, NewError(n.Location(), "expected a mapping node")
	}
	for i := 0; i+1 < len(n.yn.Content); i += 2 {
		if n.yn.Content[i].Value == key {
			return &Node{yn: n.yn.Content[i+1], file: n.file}, nil
		}
	}
	return nil, nil
}

// MustGet returns the child with the given key, failing with a config error
// if the key is absent.
func (n *Node) MustGet(key string) (*Node, error) {
	child, err := n.Get(key)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, NewError(n.Location(), "mandatory field %q is missing", key)
	}
	return child, nil
}

// Pair is a key/value item of a mapping node. Key carries the location of
// the key scalar for error reporting.
type Pair struct {
	Key    string
	KeyLoc Location
	Value  *Node
}

// Pairs returns the mapping items in declaration order.
func (n *Node) Pairs() ([]Pair, error) {
	if n.yn.Kind != yaml.MappingNode {
		return nil, NewError(n.Location(), "expected a mapping node")
	}
	pairs := make([]Pair, 0, len(n.yn.Content)/2)
	for i := 0; i+1 < len(n.yn.Content); i += 2 {
		k := n.yn.Content[i]
		pairs = append(pairs, Pair{
			Key:    k.Value,
			KeyLoc: Location{File: n.file, Line: k.Line, Column: k.Column},
			Value:  &Node{yn: n.yn.Content[i+1], file: n.file},
		})
	}
	return pairs, nil
}

// String returns the scalar string value of the node.
func (n *Node) String() (string, error) {
	if n.yn.Kind != yaml.ScalarNode {
		return "", NewError(n.Location(), "expected a scalar value")
	}
	return n.yn.Value, nil
}

// Int returns the scalar integer value of the node.
func (n *Node) Int() (int64, error) {
	if n.yn.Kind != yaml.ScalarNode {
		return 0, NewError(n.Location(), "expected an integer value")
	}
	var v int64
	if err := n.yn.Decode(&v); err != nil {
		return 0, NewError(n.Location(), "invalid integer %q", n.yn.Value)
	}
	return v, nil
}

// Bool returns the scalar boolean value of the node.
func (n *Node) Bool() (bool, error) {
	if n.yn.Kind != yaml.ScalarNode {
		return false, NewError(n.Location(), "expected a boolean value")
	}
	var v bool
	if err := n.yn.Decode(&v); err != nil {
		return false, NewError(n.Location(), "invalid boolean %q", n.yn.Value)
	}
	return v, nil
}

// GetString returns the string value of an optional field, or the given
// default when the field is absent.
func (n *Node) GetString(key, def string) (string, error) {
	child, err := n.Get(key)
	if err != nil || child == nil {
		return def, err
	}
	return child.String()
}

// GetBool returns the boolean value of an optional field, or the given
// default when the field is absent.
func (n *Node) GetBool(key string, def bool) (bool, error) {
	child, err := n.Get(key)
	if err != nil || child == nil {
		return def, err
	}
	return child.Bool()
}

// GetInt returns the integer value of an optional field, or the given
// default when the field is absent.
func (n *Node) GetInt(key string, def int64) (int64, error) {
	child, err := n.Get(key)
	if err != nil || child == nil {
		return def, err
	}
	return child.Int()
}
