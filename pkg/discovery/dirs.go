package discovery

import (
	"context"

	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	log "github.com/sirupsen/logrus"
)

// searchDirs grows directory names inside the directory. With depth 0
// nothing is known about prefix yet, and each character is tried at every
// wildcard depth up to the limit; the first depth that answers is pinned for
// every later extension of that name. With a pinned depth, a prefix that no
// character extends is a directory name, and the directory gets a scan of
// its own.
func (s *Scanner) searchDirs(ctx context.Context, d *dirScan, prefix string, depth int) {
	defer d.done()
	var extended, unresolved bool

	// Loop through characters
	for _, c := range s.chars {
		if ctx.Err() != nil {
			return
		}
		name := prefix + string(c)

		// Self and parent references are passed through unprobed and unpinned
		if isDot(name) {
			s.spawnDirs(ctx, d, name, 0)
			continue
		}

		if depth > 0 {
			switch s.probe(ctx, Probe{Dir: d.path, Name: name, Depth: depth}).Outcome {
			case oracle.Found:
				extended = true
				s.spawnDirs(ctx, d, name, depth)
			case oracle.Failed:
				unresolved = true
			}
			continue
		}

		// Look for the shallowest depth with something below this name
	depthLoop:
		for n := 1; n <= s.maxDepth; n++ {
			switch s.probe(ctx, Probe{Dir: d.path, Name: name, Depth: n}).Outcome {
			case oracle.Found:
				extended = true
				s.spawnDirs(ctx, d, name, n)
				break depthLoop
			case oracle.Failed:
				unresolved = true
				break depthLoop
			}
		}
	}

	if ctx.Err() != nil || extended || depth == 0 {
		return
	}
	if unresolved {
		d.markUnresolved(prefix)
		s.unresolved("dir", d.path, prefix)
		return
	}

	dir := d.path.Join(prefix)
	added, err := s.tree.InsertDir(dir)
	if err != nil {
		s.log.WithFields(log.Fields{"dir": dir.String(), "err": err}).Error("Unable to record directory")
		return
	}
	if added {
		s.log.WithFields(log.Fields{"path": s.root + dir.String() + "/"}).Info("Found directory")
		s.obs.DirFound(dir)
	}
	s.spawn(ctx, func() { s.scan(ctx, dir) })
}

// spawnDirs continues directory search for name in a new goroutine
func (s *Scanner) spawnDirs(ctx context.Context, d *dirScan, name string, depth int) {
	if ctx.Err() != nil {
		return
	}
	d.add()
	s.tasks.Go(func() { s.searchDirs(ctx, d, name, depth) })
}
