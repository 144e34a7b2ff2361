// Package fstree records the files and directories that have been proven to
// exist on the remote side.
//
// A Tree only ever grows: entries are added as they are confirmed and never
// removed. Every read and write takes the same mutex, so a Tree can be
// shared freely between discovery goroutines and queried or exported at any
// time while a scan is still running.
package fstree

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNotDirectory = errors.New("not a directory")

// Kind tells files and directories apart
type Kind int

const (
	File Kind = iota
	Dir
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Dir:
		return "dir"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is a single entry. Children is nil for files.
type Node struct {
	Kind     Kind
	Children map[string]*Node
}

func newDir() *Node {
	return &Node{Kind: Dir, Children: make(map[string]*Node)}
}

// clone returns a deep copy of n
func (n *Node) clone() *Node {
	c := &Node{Kind: n.Kind}
	if n.Children != nil {
		c.Children = make(map[string]*Node, len(n.Children))
		for name, child := range n.Children {
			c.Children[name] = child.clone()
		}
	}
	return c
}

// sortedNames returns the child names of n in lexical order
func (n *Node) sortedNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree is the shared result structure. The root node is a directory labelled
// with the location the scan started from.
type Tree struct {
	mu    sync.Mutex
	label string
	root  *Node
}

// New returns an empty tree whose root is labelled label (e.g. "../")
func New(label string) *Tree {
	return &Tree{label: label, root: newDir()}
}

// Label returns the root label
func (t *Tree) Label() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label
}

// InsertFile records a file called name inside dir, creating any missing
// directories on the way. It reports whether the tree changed. Inserting a
// name that is already present, as a file or a directory, is a no-op.
func (t *Tree) InsertFile(dir Path, name string) (bool, error) {
	if err := validate(dir); err != nil {
		return false, err
	}
	if err := ValidateSegment(name); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parent, changed := t.resolveLocked(dir)
	if _, ok := parent.Children[name]; ok {
		return changed, nil
	}
	parent.Children[name] = &Node{Kind: File}
	return true, nil
}

// InsertDir records the directory p and every directory above it. A file
// already recorded anywhere on p is turned into a directory, since a name
// probe cannot tell a file from a directory with the same name while a
// directory probe can.
func (t *Tree) InsertDir(p Path) (bool, error) {
	if err := validate(p); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, changed := t.resolveLocked(p)
	return changed, nil
}

// resolveLocked walks p from the root, creating or promoting directories as
// needed, and returns the final directory node
func (t *Tree) resolveLocked(p Path) (*Node, bool) {
	changed := false
	n := t.root
	for _, seg := range p {
		child, ok := n.Children[seg]
		switch {
		case !ok:
			child = newDir()
			n.Children[seg] = child
			changed = true
		case child.Kind == File:
			child.Kind = Dir
			child.Children = make(map[string]*Node)
			changed = true
		}
		n = child
	}
	return n, changed
}

// Lookup reports the kind of the entry at p and whether it exists. The root
// always exists as a directory.
func (t *Tree) Lookup(p Path) (Kind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for _, seg := range p {
		if n.Kind != Dir {
			return 0, false
		}
		child, ok := n.Children[seg]
		if !ok {
			return 0, false
		}
		n = child
	}
	return n.Kind, true
}

// Children lists the entries directly inside the directory at p
func (t *Tree) Children(p Path) (map[string]Kind, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.root
	for i, seg := range p {
		child, ok := n.Children[seg]
		if !ok || child.Kind != Dir {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, p[:i+1].String())
		}
		n = child
	}
	out := make(map[string]Kind, len(n.Children))
	for name, child := range n.Children {
		out[name] = child.Kind
	}
	return out, nil
}

// Counts returns the number of files and directories, excluding the root
func (t *Tree) Counts() (files, dirs int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var count func(n *Node)
	count = func(n *Node) {
		for _, child := range n.Children {
			if child.Kind == Dir {
				dirs++
				count(child)
			} else {
				files++
			}
		}
	}
	count(t.root)
	return files, dirs
}

// Snapshot returns a deep copy of the root node
func (t *Tree) Snapshot() *Node {
	_, root := t.snapshot()
	return root
}

// snapshot returns the root label together with a deep copy of the root
// node, both read under the same lock
func (t *Tree) snapshot() (string, *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label, t.root.clone()
}

// Walk calls fn for every entry in depth-first, name-sorted order. It works on
// a snapshot, so fn may use the tree.
func (t *Tree) Walk(fn func(p Path, k Kind)) {
	walk(t.Snapshot(), nil, fn)
}

func walk(n *Node, p Path, fn func(Path, Kind)) {
	for _, name := range n.sortedNames() {
		child := n.Children[name]
		cp := p.Join(name)
		fn(cp, child.Kind)
		if child.Kind == Dir {
			walk(child, cp, fn)
		}
	}
}

// Paths lists every confirmed entry prefixed with the root label, in walk
// order. Directories carry a trailing "/".
func (t *Tree) Paths() []string {
	label, root := t.snapshot()
	var out []string
	walk(root, nil, func(p Path, k Kind) {
		s := label + p.String()
		if k == Dir {
			s += "/"
		}
		out = append(out, s)
	})
	return out
}

func validate(p Path) error {
	for _, seg := range p {
		if err := ValidateSegment(seg); err != nil {
			return err
		}
	}
	return nil
}
