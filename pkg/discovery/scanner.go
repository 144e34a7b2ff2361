// Package discovery maps out files and directories that can only be observed
// through an existence oracle.
//
// Names are grown one character at a time. Every candidate that the oracle
// confirms becomes a new continuation running in its own goroutine; a prefix
// that no character extends is a complete name. File names are probed
// directly. Directory names are probed with wildcard suffixes that ask for
// something nested a fixed number of levels below the candidate, and every
// confirmed directory is scanned in turn.
//
// All continuations of a run belong to one task group, so Run returns once
// the search space is exhausted, the context is cancelled, or the error
// budget has been spent.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/MaderNoob/art-gallery-scanner/pkg/alphabet"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Defaults applied to a zero Config
const (
	DefaultMaxDepth    = 4
	DefaultConcurrency = 20
)

var (
	// ErrErrorBudget stops a scan after too many failed probes
	ErrErrorBudget = errors.New("too many failed probes")
	ErrAlreadyRun  = errors.New("scanner has already run")
)

// Config tunes a Scanner
type Config struct {
	// Root is prepended to every candidate, e.g. "../"
	Root     string
	Alphabet alphabet.Alphabet
	// MaxDepth bounds the wildcard nesting used to detect directories
	MaxDepth int
	// Concurrency caps the number of oracle queries in flight
	Concurrency int
	// MaxErrors aborts the scan after this many failed probes; 0 means never
	MaxErrors int
	// MaxNesting stops directories deeper than this from being scanned; 0 means no limit
	MaxNesting int
	Observer   Observer
	Logger     log.FieldLogger
}

// Stats are running totals for a scan
type Stats struct {
	Probes   int64
	Found    int64
	NotFound int64
	Failed   int64
	// Files and Dirs are the entries currently in the tree
	Files      int64
	Dirs       int64
	Unresolved int64
	// Task counts cover every continuation goroutine
	Tasks       int64
	ActiveTasks int64
	PeakTasks   int64
}

type counters struct {
	probes, found, notFound, failed, unresolved atomic.Int64
}

// Scanner runs one discovery. It writes confirmed entries into its tree.
type Scanner struct {
	oracle     oracle.Oracle
	tree       *fstree.Tree
	root       string
	chars      []rune
	maxDepth   int
	maxErrors  int64
	maxNesting int
	sem        *semaphore.Weighted
	obs        Observer
	log        log.FieldLogger

	tasks   group
	st      counters
	ran     atomic.Bool
	cancel  context.CancelCauseFunc
	budget  sync.Once
	visitMu sync.Mutex
	visited map[string]*dirScan
}

// New returns a scanner that asks o and records into t
func New(o oracle.Oracle, t *fstree.Tree, cfg Config) (*Scanner, error) {
	if o == nil {
		return nil, errors.New("no oracle")
	}
	if t == nil {
		return nil, errors.New("no tree")
	}
	if cfg.Alphabet.Len() == 0 {
		a, err := alphabet.New(alphabet.Default)
		if err != nil {
			return nil, err
		}
		cfg.Alphabet = a
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxErrors < 0 || cfg.MaxNesting < 0 {
		return nil, fmt.Errorf("negative limits: max errors %d, max nesting %d", cfg.MaxErrors, cfg.MaxNesting)
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	return &Scanner{
		oracle:     o,
		tree:       t,
		root:       NormalizeRoot(cfg.Root),
		chars:      cfg.Alphabet.Runes(),
		maxDepth:   cfg.MaxDepth,
		maxErrors:  int64(cfg.MaxErrors),
		maxNesting: cfg.MaxNesting,
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		obs:        cfg.Observer,
		log:        cfg.Logger,
		visited:    make(map[string]*dirScan),
	}, nil
}

// Run scans the root directory and waits until every continuation has
// finished. It returns nil when the search space was exhausted. Otherwise
// the error wraps the context's cause or ErrErrorBudget; the tree keeps
// whatever had been confirmed by then.
func (s *Scanner) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.cancel = cancel

	s.scan(ctx, nil)
	s.tasks.Wait()

	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("scan stopped: %w", cause)
	}
	return nil
}

// Stats returns a snapshot of the running totals
func (s *Scanner) Stats() Stats {
	files, dirs := s.tree.Counts()
	return Stats{
		Probes:      s.st.probes.Load(),
		Found:       s.st.found.Load(),
		NotFound:    s.st.notFound.Load(),
		Failed:      s.st.failed.Load(),
		Files:       int64(files),
		Dirs:        int64(dirs),
		Unresolved:  s.st.unresolved.Load(),
		Tasks:       s.tasks.started.Load(),
		ActiveTasks: s.tasks.active.Load(),
		PeakTasks:   s.tasks.peak.Load(),
	}
}

// scan starts file discovery for dir in the background and runs the first
// level of directory discovery in the calling goroutine. Each directory is
// scanned at most once.
func (s *Scanner) scan(ctx context.Context, dir fstree.Path) {
	if ctx.Err() != nil {
		return
	}

	// Skip if the directory has already been scanned
	key := dir.String()
	s.visitMu.Lock()
	d, seen := s.visited[key]
	if !seen {
		d = newDirScan(dir)
		s.visited[key] = d
	}
	s.visitMu.Unlock()
	if seen {
		return
	}

	if s.maxNesting > 0 && dir.Len() > s.maxNesting {
		s.log.WithFields(log.Fields{"dir": s.root + key, "nesting": dir.Len()}).Debug("Not scanning directory beyond nesting limit")
		return
	}

	s.log.WithFields(log.Fields{"dir": s.root + key}).Debug("Scanning directory")
	d.add()
	s.spawn(ctx, func() { s.searchFiles(ctx, d, "") })
	s.searchDirs(ctx, d, "", 0)
}

// spawn runs fn as a new member of the scan's task group
func (s *Scanner) spawn(ctx context.Context, fn func()) {
	if ctx.Err() != nil {
		return
	}
	s.tasks.Go(fn)
}

// probe sends p to the oracle, holding a concurrency slot for the duration
func (s *Scanner) probe(ctx context.Context, p Probe) oracle.Result {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return oracle.Result{Outcome: oracle.Failed, Err: err}
	}
	res := s.oracle.Query(ctx, p.Candidate(s.root))
	s.sem.Release(1)

	s.st.probes.Add(1)
	switch res.Outcome {
	case oracle.Found:
		s.st.found.Add(1)
	case oracle.NotFound:
		s.st.notFound.Add(1)
	default:
		s.probeFailed(ctx, p, res.Err)
	}
	return res
}

// probeFailed accounts for a failed probe and enforces the error budget.
// Failures caused by the scan being stopped are not counted.
func (s *Scanner) probeFailed(ctx context.Context, p Probe, err error) {
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("no answer")
	}
	n := s.st.failed.Add(1)
	s.log.WithFields(log.Fields{"candidate": p.Candidate(s.root), "err": err}).Debug("Probe failed")
	s.obs.ProbeFailed(p, err)

	if s.maxErrors > 0 && n >= s.maxErrors {
		s.budget.Do(func() {
			s.log.WithFields(log.Fields{"failed": n}).Error("Error budget exhausted, stopping scan")
			s.cancel(fmt.Errorf("%w: %d", ErrErrorBudget, n))
		})
	}
}

// unresolved records a prefix whose completeness could not be decided
func (s *Scanner) unresolved(kind string, dir fstree.Path, prefix string) {
	s.st.unresolved.Add(1)
	s.log.WithFields(log.Fields{"kind": kind, "dir": s.root + dir.String(), "prefix": prefix}).Warn("Prefix left unresolved after failed probes")
}
