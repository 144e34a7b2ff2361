package discovery

import (
	"sync"
	"sync/atomic"
)

// group tracks every goroutine spawned for one scan, including those spawned
// by other members, so the scan can tell when it has gone quiet
type group struct {
	wg      sync.WaitGroup
	active  atomic.Int64
	peak    atomic.Int64
	started atomic.Int64
}

// Go runs fn in a new member goroutine. It must be called either before Wait
// or from inside another member.
func (g *group) Go(fn func()) {
	g.wg.Add(1)
	n := g.active.Add(1)
	g.started.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	go func() {
		defer func() {
			g.active.Add(-1)
			g.wg.Done()
		}()
		fn()
	}()
}

// Wait blocks until every member, direct or indirect, has returned
func (g *group) Wait() {
	g.wg.Wait()
}
