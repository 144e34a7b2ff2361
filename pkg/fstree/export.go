package fstree

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format selects how a tree is exported
type Format string

const (
	FormatList Format = "list"
	FormatJSON Format = "json"
	FormatTree Format = "tree"
)

// ParseFormat accepts "list", "json" or "tree" in any case
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatList, FormatJSON, FormatTree:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want list, json or tree)", s)
}

// JSON shapes. Maps are encoded with sorted keys, so output is stable.
type jsonNode struct {
	Type    string               `json:"type"`
	Entries map[string]*jsonNode `json:"entries,omitempty"`
}

type jsonTree struct {
	Root    string               `json:"root"`
	Entries map[string]*jsonNode `json:"entries"`
}

func toJSON(n *Node) map[string]*jsonNode {
	out := make(map[string]*jsonNode, len(n.Children))
	for name, child := range n.Children {
		jn := &jsonNode{Type: child.Kind.String()}
		if child.Kind == Dir {
			jn.Entries = toJSON(child)
		}
		out[name] = jn
	}
	return out
}

func fromJSON(entries map[string]*jsonNode) (*Node, error) {
	n := newDir()
	for name, jn := range entries {
		if err := ValidateSegment(name); err != nil {
			return nil, err
		}
		if jn == nil {
			return nil, fmt.Errorf("entry %q: missing body", name)
		}
		switch jn.Type {
		case "file":
			if len(jn.Entries) > 0 {
				return nil, fmt.Errorf("entry %q: file with entries", name)
			}
			n.Children[name] = &Node{Kind: File}
		case "dir":
			child, err := fromJSON(jn.Entries)
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", name, err)
			}
			n.Children[name] = child
		default:
			return nil, fmt.Errorf("entry %q: unknown type %q", name, jn.Type)
		}
	}
	return n, nil
}

// MarshalJSON encodes the whole tree as {"root": label, "entries": {...}}
func (t *Tree) MarshalJSON() ([]byte, error) {
	label, snap := t.snapshot()
	return json.Marshal(jsonTree{Root: label, Entries: toJSON(snap)})
}

// UnmarshalJSON replaces the tree contents with a previously exported tree
func (t *Tree) UnmarshalJSON(b []byte) error {
	var jt jsonTree
	if err := json.Unmarshal(b, &jt); err != nil {
		return err
	}
	root, err := fromJSON(jt.Entries)
	if err != nil {
		return fmt.Errorf("decode tree: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = jt.Root
	t.root = root
	return nil
}

// Load reads a tree exported in JSON format
func Load(r io.Reader) (*Tree, error) {
	t := New("")
	if err := json.NewDecoder(r).Decode(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Render writes the tree in the style of tree(1)
func (t *Tree) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	label, snap := t.snapshot()
	if label == "" {
		label = "."
	}
	fmt.Fprintln(bw, label)
	render(bw, snap, "")
	return bw.Flush()
}

func render(w io.Writer, n *Node, indent string) {
	names := n.sortedNames()
	for i, name := range names {
		child := n.Children[name]
		branch, next := "├── ", "│   "
		if i == len(names)-1 {
			branch, next = "└── ", "    "
		}
		if child.Kind == Dir {
			name += "/"
		}
		fmt.Fprintln(w, indent+branch+name)
		if child.Kind == Dir {
			render(w, child, indent+next)
		}
	}
}

// Export writes the tree to w in the given format
func (t *Tree) Export(w io.Writer, f Format) error {
	switch f {
	case FormatList:
		bw := bufio.NewWriter(w)
		for _, p := range t.Paths() {
			fmt.Fprintln(bw, p)
		}
		return bw.Flush()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatTree:
		return t.Render(w)
	}
	return fmt.Errorf("unknown export format %q", f)
}
