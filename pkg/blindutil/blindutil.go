// Package blindutil holds the helper commands that work with blindwalk
// exports and endpoints outside of a full scan.
package blindutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MaderNoob/art-gallery-scanner/pkg/alphabet"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	"github.com/alexflint/go-arg"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

var (
	errProbeFailed = errors.New("some probes failed")
	errUnreachable = errors.New("some names can't be discovered with this character set")
)

// Command-line arguments and help

type treeCmd struct {
	File string `arg:"positional,required" help:"tree exported by blindwalk in JSON format" placeholder:"FILE"`
}

type listCmd struct {
	File  string `arg:"positional,required" help:"tree exported by blindwalk in JSON format" placeholder:"FILE"`
	Files bool   `arg:"--files" help:"only list files"`
	Dirs  bool   `arg:"--dirs" help:"only list directories"`
}

type probeCmd struct {
	URL        string   `arg:"-u,--url,required,env:BLINDWALK_URL" help:"search endpoint" placeholder:"URL"`
	Param      string   `arg:"-p,--param,env:BLINDWALK_PARAM" help:"name of the query parameter carrying the candidate" default:"search"`
	Sentinel   string   `arg:"-s,--sentinel,env:BLINDWALK_SENTINEL" help:"response text meaning nothing matched" default:"No images found."`
	Headers    []string `arg:"--header,-H,separate" help:"header to send with each request"`
	Timeout    int      `arg:"-t" help:"per-request timeout in seconds" placeholder:"SECONDS" default:"10"`
	Retries    int      `arg:"--retries" help:"extra attempts for a failed request" default:"0"`
	Insecure   bool     `arg:"-k,--insecure" help:"don't verify TLS certificates"`
	Candidates []string `arg:"positional,required" help:"search strings to send, e.g. ../index.php or ../img*/" placeholder:"CANDIDATE"`
}

type checkCmd struct {
	Characters string   `arg:"-C,--characters" help:"characters names are built from (default: the blindwalk default set)"`
	Names      []string `arg:"positional,required" help:"names to check" placeholder:"NAME"`
}

type arguments struct {
	Tree      *treeCmd  `arg:"subcommand:tree" help:"draw an exported tree"`
	List      *listCmd  `arg:"subcommand:list" help:"list the paths in an exported tree"`
	Probe     *probeCmd `arg:"subcommand:probe" help:"ask the endpoint about individual candidates"`
	Check     *checkCmd `arg:"subcommand:check" help:"report names that contain characters outside the character set"`
	Verbosity int       `arg:"-v" help:"how much noise to make (0 = quiet; 1 = debug; 2 = trace)" default:"0"`
}

// Run kicks off blindutil from the command line
func Run() {
	var a arguments
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
		DisableTimestamp:       true,
	})
	if a.Verbosity > 1 {
		log.SetLevel(log.TraceLevel)
	} else if a.Verbosity > 0 {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if err := execute(context.Background(), a, os.Stdout, log.StandardLogger()); err != nil {
		log.WithFields(log.Fields{"err": err}).Fatal("blindutil failed")
	}
}

// execute runs the selected subcommand
func execute(ctx context.Context, a arguments, out io.Writer, logger log.FieldLogger) error {
	switch {
	case a.Tree != nil:
		return drawTree(a.Tree.File, out)
	case a.List != nil:
		return listTree(a.List, out)
	case a.Probe != nil:
		return probe(ctx, a.Probe, out, logger)
	case a.Check != nil:
		return check(a.Check, out)
	}
	return errors.New("missing subcommand")
}

func loadTree(path string) (*fstree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := fstree.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// drawTree renders the tree with directories highlighted
func drawTree(path string, out io.Writer) error {
	t, err := loadTree(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.Render(&buf); err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	s := bufio.NewScanner(&buf)
	for first := true; s.Scan(); first = false {
		line := s.Text()
		switch {
		case first:
			line = color.New(color.FgWhite, color.Bold).Sprint(line)
		case strings.HasSuffix(line, "/"):
			i := strings.LastIndex(line, "── ") + len("── ")
			line = line[:i] + color.HiBlueString(line[i:])
		}
		fmt.Fprintln(w, line)
	}
	files, dirs := t.Counts()
	fmt.Fprintf(w, "\n%d directories, %d files\n", dirs, files)
	return w.Flush()
}

// listTree prints one path per line
func listTree(c *listCmd, out io.Writer) error {
	t, err := loadTree(c.File)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, p := range t.Paths() {
		isDir := strings.HasSuffix(p, "/")
		if (c.Files && isDir) || (c.Dirs && !isDir) {
			continue
		}
		fmt.Fprintln(w, p)
	}
	return w.Flush()
}

// probe sends each candidate to the endpoint once and prints the outcome
func probe(ctx context.Context, c *probeCmd, out io.Writer, logger log.FieldLogger) error {
	client, err := oracle.NewClient(oracle.Config{
		Endpoint: c.URL,
		Param:    c.Param,
		Sentinel: c.Sentinel,
		Headers:  c.Headers,
		Timeout:  time.Duration(c.Timeout) * time.Second,
		Insecure: c.Insecure,
		Retries:  c.Retries,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	failed := false
	for _, cand := range c.Candidates {
		res := client.Query(ctx, cand)
		var o string
		switch res.Outcome {
		case oracle.Found:
			o = color.HiGreenString("%-9s", res.Outcome)
		case oracle.NotFound:
			o = color.HiBlackString("%-9s", res.Outcome)
		default:
			failed = true
			o = color.HiRedString("%-9s", res.Outcome)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "%s %s (%v)\n", o, cand, res.Err)
		} else {
			fmt.Fprintf(out, "%s %s\n", o, cand)
		}
	}
	if failed {
		return errProbeFailed
	}
	return nil
}

// check reports names that a scan with the given characters can never find
func check(c *checkCmd, out io.Writer) error {
	chars := c.Characters
	if chars == "" {
		chars = alphabet.Default
	}
	a, err := alphabet.New(chars)
	if err != nil {
		return err
	}

	bad := false
	for _, name := range c.Names {
		missing := a.Unreachable(name)
		if len(missing) == 0 {
			fmt.Fprintf(out, "%s %s\n", color.HiGreenString("ok         "), name)
			continue
		}
		bad = true
		fmt.Fprintf(out, "%s %s (missing %q)\n", color.HiRedString("unreachable"), name, string(missing))
	}
	if bad {
		return errUnreachable
	}
	return nil
}
