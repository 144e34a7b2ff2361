package fstree

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSegment = errors.New("invalid path segment")

// Path is an ordered sequence of segment names from the tree root to an
// entry. The zero value is the root itself.
type Path []string

// NewPath validates segs and returns them as a Path
func NewPath(segs ...string) (Path, error) {
	for _, s := range segs {
		if err := ValidateSegment(s); err != nil {
			return nil, err
		}
	}
	return Path(append([]string(nil), segs...)), nil
}

// ValidateSegment checks that s can name a single entry in a directory
func ValidateSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalidSegment)
	case s == "." || s == "..":
		return fmt.Errorf("%w: %q is a self or parent reference", ErrInvalidSegment, s)
	case strings.ContainsRune(s, '/'):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidSegment, s)
	}
	return nil
}

// Join returns a new path with name appended. The receiver is never modified,
// so paths can be shared between goroutines.
func (p Path) Join(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Parent returns the path without its last segment; the root is its own parent
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Name returns the last segment, or "" for the root
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Len() int {
	return len(p)
}

func (p Path) IsRoot() bool {
	return len(p) == 0
}

// String joins the segments with "/"
func (p Path) String() string {
	return strings.Join(p, "/")
}
