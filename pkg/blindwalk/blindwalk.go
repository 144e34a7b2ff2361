// Package blindwalk is the command-line front end: it reads settings from
// flags, the environment and an optional TOML file, runs a discovery scan
// against a search endpoint and reports what was found.
package blindwalk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MaderNoob/art-gallery-scanner/pkg/alphabet"
	"github.com/MaderNoob/art-gallery-scanner/pkg/discovery"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"
	"github.com/MaderNoob/art-gallery-scanner/pkg/oracle"

	"github.com/alexflint/go-arg"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Version
const version = "0.3.1"

// Process exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 2
)

// Defaults for the art gallery search this tool was first pointed at
const (
	defaultURL     = "http://art.shieldchallenges.com/"
	defaultParam   = "search"
	defaultRoot    = "../"
	defaultCache   = 4096
	defaultTimeout = 10
	defaultRetries = 3
	defaultBackoff = 250
	defaultFormat  = "json"
	defaultOutput  = "human"
)

// Command-line arguments and help. Every option can also come from the
// environment or from the TOML file named by --config.
type arguments struct {
	Config      string   `arg:"--config,env:BLINDWALK_CONFIG" help:"TOML file with settings (flags and environment take precedence)" placeholder:"FILE" toml:"-"`
	URL         string   `arg:"-u,--url,env:BLINDWALK_URL" help:"search endpoint; each candidate is sent as a query parameter" placeholder:"URL" toml:"url"`
	Param       string   `arg:"-p,--param,env:BLINDWALK_PARAM" help:"name of the query parameter carrying the candidate" placeholder:"NAME" toml:"param"`
	Sentinel    string   `arg:"-s,--sentinel,env:BLINDWALK_SENTINEL" help:"response text meaning nothing matched" placeholder:"TEXT" toml:"sentinel"`
	Root        string   `arg:"-r,--root,env:BLINDWALK_ROOT" help:"directory to start from, relative to where the endpoint searches" placeholder:"DIR" toml:"root"`
	Characters  string   `arg:"-C,--characters,env:BLINDWALK_CHARACTERS" help:"characters names are built from" toml:"characters"`
	MaxDepth    int      `arg:"-d,--max-depth,env:BLINDWALK_MAX_DEPTH" help:"deepest wildcard nesting used to detect directories" placeholder:"LEVELS" toml:"max_depth"`
	MaxNesting  int      `arg:"-n,--max-nesting,env:BLINDWALK_MAX_NESTING" help:"don't scan directories nested deeper than this (0 = no limit)" placeholder:"LEVELS" toml:"max_nesting"`
	Headers     []string `arg:"--header,-H,separate,env:BLINDWALK_HEADERS" help:"header to send with each request (use multiple times for multiple headers)" toml:"headers"`
	Concurrency int      `arg:"-c,--concurrency,env:BLINDWALK_CONCURRENCY" help:"number of requests to make at once" toml:"concurrency"`
	Timeout     int      `arg:"-t,--timeout,env:BLINDWALK_TIMEOUT" help:"per-request timeout in seconds" placeholder:"SECONDS" toml:"timeout"`
	Retries     int      `arg:"--retries,env:BLINDWALK_RETRIES" help:"extra attempts for a failed request" toml:"retries"`
	Backoff     int      `arg:"--backoff,env:BLINDWALK_BACKOFF" help:"initial delay between attempts in milliseconds" placeholder:"MS" toml:"backoff"`
	BackoffMax  int      `arg:"--backoff-max,env:BLINDWALK_BACKOFF_MAX" help:"longest delay between attempts in milliseconds (0 = 30 x backoff)" placeholder:"MS" toml:"backoff_max"`
	Insecure    bool     `arg:"-k,--insecure,env:BLINDWALK_INSECURE" help:"don't verify TLS certificates" toml:"insecure"`
	CacheSize   int      `arg:"--cache-size,env:BLINDWALK_CACHE_SIZE" help:"number of answers to remember (0 = no cache)" toml:"cache_size"`
	MaxErrors   int      `arg:"-m,--max-errors,env:BLINDWALK_MAX_ERRORS" help:"give up after this many failed probes (0 = never)" toml:"max_errors"`
	Deadline    int      `arg:"--deadline,env:BLINDWALK_DEADLINE" help:"stop scanning after this many seconds (0 = no limit)" placeholder:"SECONDS" toml:"deadline"`
	Output      string   `arg:"-o,--output,env:BLINDWALK_OUTPUT" help:"output format (human = human readable; json = JSON)" placeholder:"format" toml:"output"`
	Verbosity   int      `arg:"-v,--verbosity,env:BLINDWALK_VERBOSITY" help:"how much noise to make (0 = quiet; 1 = debug; 2 = trace)" toml:"verbosity"`
	Export      string   `arg:"-e,--export,env:BLINDWALK_EXPORT" help:"write the discovered tree to this file when the scan ends" placeholder:"FILE" toml:"export"`
	Format      string   `arg:"-f,--format,env:BLINDWALK_FORMAT" help:"export format (list, json or tree)" placeholder:"format" toml:"format"`
	Checkpoint  int      `arg:"--checkpoint,env:BLINDWALK_CHECKPOINT" help:"rewrite the export file every this many seconds while scanning (0 = only at the end)" placeholder:"SECONDS" toml:"checkpoint"`
}

func (arguments) Version() string {
	return getBanner()
}

// defaultArguments returns the settings used when nothing else is given
func defaultArguments() arguments {
	return arguments{
		URL:         defaultURL,
		Param:       defaultParam,
		Sentinel:    oracle.DefaultSentinel,
		Root:        defaultRoot,
		Characters:  alphabet.Default,
		MaxDepth:    discovery.DefaultMaxDepth,
		Concurrency: discovery.DefaultConcurrency,
		Timeout:     defaultTimeout,
		Retries:     defaultRetries,
		Backoff:     defaultBackoff,
		CacheSize:   defaultCache,
		Output:      defaultOutput,
		Format:      defaultFormat,
	}
}

// getBanner returns the main banner
func getBanner() string {
	return color.New(color.FgBlue, color.Bold).Sprint("🔦 blindwalk v"+version) +
		" · " + color.New(color.FgWhite, color.Bold).Sprint("a directory tree mapper for search endpoints that only say yes or no")
}

// parseArgs builds the settings from defaults, the config file, the
// environment and argv, in increasing order of precedence. The returned
// parser is nil only if the argument struct itself is broken.
func parseArgs(argv []string) (arguments, *arg.Parser, error) {
	// First pass only looks for --config
	first := defaultArguments()
	p, err := arg.NewParser(arg.Config{Program: "blindwalk"}, &first)
	if err != nil {
		return first, nil, err
	}
	if err := p.Parse(argv); err != nil {
		return first, p, err
	}

	a := defaultArguments()
	if first.Config != "" {
		if err := loadConfig(first.Config, &a); err != nil {
			return a, p, err
		}
	}

	p, err = arg.NewParser(arg.Config{Program: "blindwalk"}, &a)
	if err != nil {
		return a, nil, err
	}
	if err := p.Parse(argv); err != nil {
		return a, p, err
	}
	err = a.validate()
	return a, p, err
}

// validate normalises and checks the settings
func (a *arguments) validate() error {
	a.Output = strings.ToLower(a.Output)
	if a.Output != "human" && a.Output != "json" {
		return errors.New("output must be one of: human, json")
	}
	if _, err := fstree.ParseFormat(a.Format); err != nil {
		return err
	}
	if _, err := alphabet.New(a.Characters); err != nil {
		return fmt.Errorf("characters: %w", err)
	}
	if a.MaxDepth < 1 {
		return errors.New("max depth must be at least 1")
	}
	if a.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if a.Timeout < 1 {
		return errors.New("timeout must be at least 1 second")
	}
	for name, v := range map[string]int{
		"retries": a.Retries, "backoff": a.Backoff, "backoff max": a.BackoffMax,
		"cache size": a.CacheSize, "max errors": a.MaxErrors, "max nesting": a.MaxNesting,
		"deadline": a.Deadline, "checkpoint": a.Checkpoint,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if a.Checkpoint > 0 && a.Export == "" {
		return errors.New("checkpoint needs an export file")
	}
	return nil
}

// newLogger returns a logger configured the same way for every verbosity
func newLogger(verbosity int, w io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(w)
	l.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
		DisableTimestamp:       true,
	})
	if verbosity > 1 {
		l.SetLevel(log.TraceLevel)
	} else if verbosity > 0 {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.WarnLevel)
	}
	return l
}

// Run kicks off a scan from the command line
func Run() {
	// Settings may live in a .env file next to the binary's working directory
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithFields(log.Fields{"err": err}).Fatal("Unable to load .env file")
	}

	a, p, err := parseArgs(os.Args[1:])
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(os.Stdout)
		os.Exit(ExitOK)
	case errors.Is(err, arg.ErrVersion):
		fmt.Println(getBanner())
		os.Exit(ExitOK)
	case err != nil && p != nil:
		p.Fail(err.Error())
	case err != nil:
		log.WithFields(log.Fields{"err": err}).Fatal("Unable to set up arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, a, os.Stdout, newLogger(a.Verbosity, os.Stderr))
	stop()
	os.Exit(code)
}

// execute runs one scan with validated settings and returns the exit code
func execute(ctx context.Context, a arguments, out io.Writer, logger *log.Logger) int {
	pr := newPrinter(out, a.Output)
	pr.human(getBanner())

	alpha, err := alphabet.New(a.Characters)
	if err != nil {
		logger.WithFields(log.Fields{"err": err}).Error("Invalid character set")
		return ExitFailure
	}
	format, err := fstree.ParseFormat(a.Format)
	if err != nil {
		logger.WithFields(log.Fields{"err": err}).Error("Invalid export format")
		return ExitFailure
	}

	// Warn about characters the endpoint may treat as pattern syntax
	for _, c := range alpha.Suspicious() {
		logger.WithFields(log.Fields{"character": string(c)}).Warn("Character has a meaning in glob patterns; weird things may happen")
	}

	client, err := oracle.NewClient(oracle.Config{
		Endpoint:    a.URL,
		Param:       a.Param,
		Sentinel:    a.Sentinel,
		Headers:     a.Headers,
		Timeout:     time.Duration(a.Timeout) * time.Second,
		Insecure:    a.Insecure,
		Retries:     a.Retries,
		BackoffBase: time.Duration(a.Backoff) * time.Millisecond,
		BackoffMax:  time.Duration(a.BackoffMax) * time.Millisecond,
		CacheSize:   a.CacheSize,
		Logger:      logger,
	})
	if err != nil {
		logger.WithFields(log.Fields{"err": err}).Error("Unable to set up search client")
		return ExitFailure
	}

	tree := fstree.New(discovery.NormalizeRoot(a.Root))
	pr.root = tree.Label()
	scanner, err := discovery.New(client, tree, discovery.Config{
		Root:        a.Root,
		Alphabet:    alpha,
		MaxDepth:    a.MaxDepth,
		Concurrency: a.Concurrency,
		MaxErrors:   a.MaxErrors,
		MaxNesting:  a.MaxNesting,
		Observer:    pr,
		Logger:      logger,
	})
	if err != nil {
		logger.WithFields(log.Fields{"err": err}).Error("Unable to set up scanner")
		return ExitFailure
	}

	pr.header(client.URL(tree.Label()), alpha.String())

	if a.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.Deadline)*time.Second)
		defer cancel()
	}

	// Scan and checkpoint side by side; a failed checkpoint stops the scan
	g, gctx := errgroup.WithContext(ctx)
	cpctx, stopCheckpoints := context.WithCancel(gctx)
	defer stopCheckpoints()
	g.Go(func() error {
		defer stopCheckpoints()
		return scanner.Run(gctx)
	})
	if a.Checkpoint > 0 {
		g.Go(func() error {
			return checkpoint(cpctx, tree, a.Export, format, time.Duration(a.Checkpoint)*time.Second, logger)
		})
	}
	scanErr := g.Wait()

	status, code := "exhausted", ExitOK
	switch {
	case scanErr == nil:
	case errors.Is(scanErr, discovery.ErrErrorBudget):
		status, code = "failed", ExitFailure
		logger.WithFields(log.Fields{"err": scanErr}).Error("Scan aborted; results are partial")
	case errors.Is(scanErr, context.Canceled), errors.Is(scanErr, context.DeadlineExceeded):
		status, code = "interrupted", ExitInterrupted
		logger.WithFields(log.Fields{"err": scanErr}).Warn("Scan interrupted; results are partial")
	default:
		status, code = "failed", ExitFailure
		logger.WithFields(log.Fields{"err": scanErr}).Error("Scan failed; results are partial")
	}

	if a.Export != "" {
		if err := writeExport(tree, a.Export, format); err != nil {
			logger.WithFields(log.Fields{"file": a.Export, "err": err}).Error("Unable to write export")
			status, code = "failed", ExitFailure
		} else {
			logger.WithFields(log.Fields{"file": a.Export, "format": format}).Info("Wrote export")
		}
	}

	pr.finish(tree, status, client.Stats(), scanner.Stats())
	return code
}
