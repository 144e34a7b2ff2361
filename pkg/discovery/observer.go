package discovery

import "github.com/MaderNoob/art-gallery-scanner/pkg/fstree"

// Observer is told about discoveries as they happen. Calls come from many
// goroutines at once.
type Observer interface {
	FileFound(dir fstree.Path, name string)
	DirFound(dir fstree.Path)
	ProbeFailed(p Probe, err error)
}

// NopObserver ignores everything
type NopObserver struct{}

func (NopObserver) FileFound(fstree.Path, string) {}
func (NopObserver) DirFound(fstree.Path)          {}
func (NopObserver) ProbeFailed(Probe, error)      {}
