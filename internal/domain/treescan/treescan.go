// Package treescan locates values inside provider responses whose shape varies
// between API versions. JSON objects keep their key order so the first match
// is deterministic: depth-first, object members in document order, array
// items in index order.
package treescan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// MaxParseDepth bounds nesting accepted by Parse.
const MaxParseDepth = 1000

// ErrTooDeep signals input nested beyond MaxParseDepth.
var ErrTooDeep = errors.New("tree nested too deeply")

// Kind is the JSON type of a node.
type Kind int

// Node kinds.
const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

// Node is one value of an order-preserving JSON tree.
type Node struct {
	Kind Kind
	// Scalar holds the string value, the number literal, or "true"/"false".
	Scalar string
	Keys   []string
	Values []*Node
	Items  []*Node
}

// Get returns the first member named key of an object node, or nil.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != Object {
		return nil
	}
	for i, k := range n.Keys {
		if k == key {
			return n.Values[i]
		}
	}
	return nil
}

// StringValue returns the string of a String node.
func (n *Node) StringValue() (string, bool) {
	if n == nil || n.Kind != String {
		return "", false
	}
	return n.Scalar, true
}

// Parse decodes one JSON document into an ordered tree.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	root, err := build(dec, tok, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read json: trailing data")
	}
	return root, nil
}

func build(dec *json.Decoder, tok json.Token, depth int) (*Node, error) {
	if depth > MaxParseDepth {
		return nil, ErrTooDeep
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return buildObject(dec, depth)
		case '[':
			return buildArray(dec, depth)
		}
		return nil, fmt.Errorf("read json: unexpected delimiter %q", v)
	case string:
		return &Node{Kind: String, Scalar: v}, nil
	case json.Number:
		return &Node{Kind: Number, Scalar: v.String()}, nil
	case bool:
		if v {
			return &Node{Kind: Bool, Scalar: "true"}, nil
		}
		return &Node{Kind: Bool, Scalar: "false"}, nil
	case nil:
		return &Node{Kind: Null}, nil
	}
	return nil, fmt.Errorf("read json: unexpected token %v", tok)
}

func buildObject(dec *json.Decoder, depth int) (*Node, error) {
	n := &Node{Kind: Object}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read json: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("read json: object key is %T", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read json: %w", err)
		}
		child, err := build(dec, valTok, depth+1)
		if err != nil {
			return nil, err
		}
		n.Keys = append(n.Keys, key)
		n.Values = append(n.Values, child)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	return n, nil
}

func buildArray(dec *json.Decoder, depth int) (*Node, error) {
	n := &Node{Kind: Array}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read json: %w", err)
		}
		child, err := build(dec, tok, depth+1)
		if err != nil {
			return nil, err
		}
		n.Items = append(n.Items, child)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	return n, nil
}

// Find returns the first node, in pre-order, for which match reports true.
// Nodes deeper than maxDepth (root is depth 0) are not visited.
func Find(root *Node, maxDepth int, match func(*Node) bool) (*Node, bool) {
	if root == nil || maxDepth < 0 {
		return nil, false
	}
	if match(root) {
		return root, true
	}
	var children []*Node
	switch root.Kind {
	case Object:
		children = root.Values
	case Array:
		children = root.Items
	default:
		return nil, false
	}
	for _, c := range children {
		if found, ok := Find(c, maxDepth-1, match); ok {
			return found, true
		}
	}
	return nil, false
}

var base64Charset = regexp.MustCompile(`^[A-Za-z0-9+/=\s]+$`)

// LooksBase64 is a best-effort guess that s carries base64 binary data:
// longer than 100 bytes once trimmed and drawn only from the base64 alphabet
// plus whitespace. Long plain words can pass; callers must still decode and validate.
func LooksBase64(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 100 && base64Charset.MatchString(s)
}
