package discovery

import (
	"sync"
	"sync/atomic"

	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
)

// dirScan is the state shared by the searches running in one directory.
// Directory search continuations are counted, and dirsDone is closed when
// the last of them returns: from then on every subdirectory the scan can
// find in path has been recorded or left unresolved.
type dirScan struct {
	path     fstree.Path
	pending  atomic.Int64
	dirsDone chan struct{}

	mu         sync.Mutex
	unresolved map[string]struct{}
}

func newDirScan(p fstree.Path) *dirScan {
	return &dirScan{path: p, dirsDone: make(chan struct{}), unresolved: make(map[string]struct{})}
}

// add registers a directory search continuation. It must be called before
// the continuation starts.
func (d *dirScan) add() {
	d.pending.Add(1)
}

func (d *dirScan) done() {
	if d.pending.Add(-1) == 0 {
		close(d.dirsDone)
	}
}

// markUnresolved remembers a directory name whose search could not finish
func (d *dirScan) markUnresolved(name string) {
	d.mu.Lock()
	d.unresolved[name] = struct{}{}
	d.mu.Unlock()
}

func (d *dirScan) isUnresolved(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.unresolved[name]
	return ok
}
