package discovery

import (
	"context"

	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	log "github.com/sirupsen/logrus"
)

// searchFiles tries every character after prefix inside the directory. Each
// confirmed extension continues in its own goroutine; if nothing extends a
// non-empty prefix, the prefix is a file name unless directory search in the
// same directory claims it.
func (s *Scanner) searchFiles(ctx context.Context, d *dirScan, prefix string) {
	var extended, unresolved bool

	// Loop through characters
	for _, c := range s.chars {
		if ctx.Err() != nil {
			return
		}
		name := prefix + string(c)

		// Self and parent references are passed through unprobed
		if isDot(name) {
			s.spawn(ctx, func() { s.searchFiles(ctx, d, name) })
			continue
		}

		switch s.probe(ctx, Probe{Dir: d.path, Name: name}).Outcome {
		case oracle.Found:
			extended = true
			s.spawn(ctx, func() { s.searchFiles(ctx, d, name) })
		case oracle.Failed:
			unresolved = true
		}
	}

	if ctx.Err() != nil || extended || prefix == "" || isDot(prefix) {
		return
	}
	if unresolved {
		s.unresolved("file", d.path, prefix)
		return
	}

	// Name probes match directories too, so wait for directory search here
	select {
	case <-d.dirsDone:
	case <-ctx.Done():
		return
	}
	if k, ok := s.tree.Lookup(d.path.Join(prefix)); ok && k == fstree.Dir {
		return
	}
	if d.isUnresolved(prefix) {
		s.unresolved("file", d.path, prefix)
		return
	}

	added, err := s.tree.InsertFile(d.path, prefix)
	if err != nil {
		s.log.WithFields(log.Fields{"dir": d.path.String(), "name": prefix, "err": err}).Error("Unable to record file")
		return
	}
	if added {
		s.log.WithFields(log.Fields{"path": s.root + d.path.Join(prefix).String()}).Info("Found file")
		s.obs.FileFound(d.path, prefix)
	}
}
