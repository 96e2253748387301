package lpk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Kind tags the three shapes a document node can take.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

// Node is a decoded configuration document. Mappings keep their keys
// in document order so traversal and output are deterministic.
type Node struct {
	Kind Kind

	// Scalar holds string, json.Number, bool, or nil.
	Scalar any

	// Keys are mapping keys, parallel to Items. Empty for sequences.
	Keys  []string
	Items []*Node
}

// String returns the scalar string value.
func (n *Node) String() (string, bool) {
	if n == nil || n.Kind != KindScalar {
		return "", false
	}
	s, ok := n.Scalar.(string)
	return s, ok
}

// Get returns the value stored under key in a mapping.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMapping {
		return nil, false
	}
	for i, k := range n.Keys {
		if k == key {
			return n.Items[i], true
		}
	}
	return nil, false
}

// ParseNode decodes a JSON document into a Node.
func ParseNode(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after document")
	}
	return root, nil
}

func parseValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &Node{Kind: KindMapping}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				n.Keys = append(n.Keys, key)
				n.Items = append(n.Items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &Node{Kind: KindSequence}
			for dec.More() {
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return &Node{Kind: KindScalar, Scalar: t}, nil
	}
}

// Field is one scalar reached by Walk, addressed by its path from the root.
type Field struct {
	Path  []string
	Value *Node
}

// Name joins the path with underscores. Asset output names are built
// from it.
func (f Field) Name() string {
	return strings.Join(f.Path, "_")
}

// Dotted joins the path with dots for diagnostics.
func (f Field) Dotted() string {
	return strings.Join(f.Path, ".")
}

// Walk yields every scalar under n depth-first in document order.
// Sequence elements contribute their index as a path segment.
func Walk(n *Node) iter.Seq[Field] {
	type frame struct {
		path []string
		node *Node
	}

	return func(yield func(Field) bool) {
		if n == nil {
			return
		}
		stack := []frame{{node: n}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if top.node.Kind == KindScalar {
				if len(top.path) == 0 {
					continue
				}
				if !yield(Field{Path: top.path, Value: top.node}) {
					return
				}
				continue
			}

			// Push children in reverse so the first child is visited first.
			for i := len(top.node.Items) - 1; i >= 0; i-- {
				seg := fmt.Sprint(i)
				if top.node.Kind == KindMapping {
					seg = top.node.Keys[i]
				}
				path := make([]string, len(top.path), len(top.path)+1)
				copy(path, top.path)
				stack = append(stack, frame{path: append(path, seg), node: top.node.Items[i]})
			}
		}
	}
}

// MarshalIndent renders n as indented JSON without HTML escaping.
func (n *Node) MarshalIndent() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.write(&buf, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (n *Node) write(buf *bytes.Buffer, depth int) error {
	indent := func(d int) {
		buf.WriteByte('\n')
		buf.WriteString(strings.Repeat("  ", d))
	}

	switch n.Kind {
	case KindMapping:
		if len(n.Items) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, key := range n.Keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			indent(depth + 1)
			if err := writeScalar(buf, key); err != nil {
				return err
			}
			buf.WriteString(": ")
			if err := n.Items[i].write(buf, depth+1); err != nil {
				return err
			}
		}
		indent(depth)
		buf.WriteByte('}')
	case KindSequence:
		if len(n.Items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			indent(depth + 1)
			if err := item.write(buf, depth+1); err != nil {
				return err
			}
		}
		indent(depth)
		buf.WriteByte(']')
	default:
		return writeScalar(buf, n.Scalar)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
