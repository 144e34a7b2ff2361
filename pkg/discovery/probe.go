package discovery

import (
	"strings"

	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
)

// Marker matching any single path component, repeated once per depth level
// in a directory probe
const wildcard = "*/"

// Probe is one guess sent to the oracle. A zero Depth asks whether any entry
// in Dir has a name starting with Name. A positive Depth asks whether a
// directory whose name starts with Name has something nested Depth levels
// below it.
type Probe struct {
	Dir   fstree.Path
	Name  string
	Depth int
}

// IsDir reports whether p is a wildcard directory probe
func (p Probe) IsDir() bool {
	return p.Depth > 0
}

// Candidate builds the search string for p below root
func (p Probe) Candidate(root string) string {
	var b strings.Builder
	b.WriteString(root)
	for _, seg := range p.Dir {
		b.WriteString(seg)
		b.WriteByte('/')
	}
	b.WriteString(p.Name)
	for range p.Depth {
		b.WriteString(wildcard)
	}
	return b.String()
}

// NormalizeRoot makes sure a non-empty root ends with a separator, so that
// names are appended below it rather than onto it
func NormalizeRoot(root string) string {
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// isDot reports self and parent references. They are never sent as
// candidates, since they match unconditionally.
func isDot(name string) bool {
	return name == "." || name == ".."
}
