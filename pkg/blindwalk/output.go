package blindwalk

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/MaderNoob/art-gallery-scanner/pkg/discovery"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	"github.com/fatih/color"
)

const rule = "════════════════════════════════════════════════════════════════════════════════"

// JSON output records, one per line

type resultOutput struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type errorOutput struct {
	Type      string `json:"type"`
	Candidate string `json:"candidate"`
	Error     string `json:"error"`
}

type statsOutput struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	Requests      int    `json:"requests"`
	Retries       int    `json:"retries"`
	Failures      int    `json:"failures"`
	CacheHits     int    `json:"cachehits"`
	ReceivedBytes int64  `json:"receivedbytes"`
	Probes        int64  `json:"probes"`
	Files         int64  `json:"files"`
	Directories   int64  `json:"directories"`
	Unresolved    int64  `json:"unresolved"`
	PeakTasks     int64  `json:"peaktasks"`
}

// printer writes scan events to stdout in the selected format. It is the
// scanner's Observer, so it is called from many goroutines.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	mode string
	root string
}

func newPrinter(out io.Writer, mode string) *printer {
	return &printer{out: out, mode: mode}
}

// human prints human-readable output if enabled
func (p *printer) human(s ...any) {
	if p.mode == "human" {
		p.mu.Lock()
		fmt.Fprintln(p.out, s...)
		p.mu.Unlock()
	}
}

// json prints JSON formatted output if enabled
func (p *printer) json(o any) {
	if p.mode == "json" {
		j, _ := json.Marshal(o)
		p.mu.Lock()
		fmt.Fprintln(p.out, string(j))
		p.mu.Unlock()
	}
}

func (p *printer) header(url, chars string) {
	bold := color.New(color.FgWhite, color.Bold)
	p.human(rule)
	p.human(bold.Sprint("Search")+":", url)
	p.human(bold.Sprint("Characters")+":", chars)
	p.human(rule)
}

func (p *printer) FileFound(dir fstree.Path, name string) {
	path := p.root + dir.Join(name).String()
	p.human(fmt.Sprintf("%-5s %s", "file", color.HiGreenString(path)))
	p.json(resultOutput{Type: "file", Path: path})
}

func (p *printer) DirFound(dir fstree.Path) {
	path := p.root + dir.String() + "/"
	p.human(fmt.Sprintf("%-5s %s", "dir", color.HiBlueString(path)))
	p.json(resultOutput{Type: "dir", Path: path})
}

// ProbeFailed only shows up in JSON output; human output gets a log line
// from the scanner instead
func (p *printer) ProbeFailed(pr discovery.Probe, err error) {
	p.json(errorOutput{Type: "error", Candidate: pr.Candidate(p.root), Error: err.Error()})
}

// finish prints the final tree and the statistics line
func (p *printer) finish(t *fstree.Tree, status string, rs oracle.Stats, ss discovery.Stats) {
	files, dirs := t.Counts()
	if p.mode == "human" {
		p.human(rule)
		p.mu.Lock()
		t.Render(p.out)
		p.mu.Unlock()
		p.human(rule)
		p.human()

		s := color.New(color.FgWhite, color.Bold).Sprint("Finished!")
		switch status {
		case "interrupted":
			s = color.New(color.FgYellow, color.Bold).Sprint("Interrupted!")
		case "failed":
			s = color.New(color.FgRed, color.Bold).Sprint("Failed!")
		}
		p.human(fmt.Sprintf("%s Requests: %d; Retries: %d; Failures: %d; Cache hits: %d; Received %d bytes; Files: %d; Directories: %d; Unresolved: %d",
			s, rs.Requests, rs.Retries, rs.Failures, rs.CacheHits, rs.BytesRx, files, dirs, ss.Unresolved))
	}
	p.json(statsOutput{
		Type:          "statistics",
		Status:        status,
		Requests:      rs.Requests,
		Retries:       rs.Retries,
		Failures:      rs.Failures,
		CacheHits:     rs.CacheHits,
		ReceivedBytes: rs.BytesRx,
		Probes:        ss.Probes,
		Files:         int64(files),
		Directories:   int64(dirs),
		Unresolved:    ss.Unresolved,
		PeakTasks:     ss.PeakTasks,
	})
}
