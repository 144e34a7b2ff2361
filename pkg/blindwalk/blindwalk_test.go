package blindwalk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MaderNoob/art-gallery-scanner/pkg/alphabet"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"

	"github.com/alexflint/go-arg"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// galleryServer answers searches like a glob over files, relative to "../"
func galleryServer(t *testing.T, files ...string) *httptest.Server {
	t.Helper()
	var paths [][]string
	for _, f := range files {
		paths = append(paths, strings.Split(f, "/"))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := strings.CutPrefix(r.URL.Query().Get("search"), "../")
		if !ok {
			fmt.Fprint(w, "<p>No images found.</p>")
			return
		}
		depth := 0
		for strings.HasSuffix(c, "*/") {
			c = strings.TrimSuffix(c, "*/")
			depth++
		}
		var dir []string
		if i := strings.LastIndex(c, "/"); i >= 0 {
			dir = strings.Split(c[:i], "/")
			c = c[i+1:]
		}
		for _, p := range paths {
			if len(p) < len(dir)+1+depth || strings.Join(p[:len(dir)], "/") != strings.Join(dir, "/") {
				continue
			}
			if strings.HasPrefix(p[len(dir)], c) {
				fmt.Fprint(w, "<ul><li><img src=\"x.png\"></li></ul>")
				return
			}
		}
		fmt.Fprint(w, "<p>No images found.</p>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testArguments(url string) arguments {
	a := defaultArguments()
	a.URL = url
	a.Characters = "abcdef."
	a.MaxDepth = 3
	a.Concurrency = 4
	a.Timeout = 5
	a.Retries = 0
	a.Backoff = 1
	a.Output = "json"
	return a
}

// events decodes JSON output lines
func events(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var evs []map[string]any
	s := bufio.NewScanner(out)
	for s.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(s.Bytes(), &ev), s.Text())
		evs = append(evs, ev)
	}
	return evs
}

func lastOfType(evs []map[string]any, typ string) map[string]any {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i]["type"] == typ {
			return evs[i]
		}
	}
	return nil
}

func hasEvent(evs []map[string]any, typ, path string) bool {
	for _, ev := range evs {
		if ev["type"] == typ && ev["path"] == path {
			return true
		}
	}
	return false
}

func TestParseArgs_Defaults(t *testing.T) {
	a, _, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultArguments(), a)
}

func TestParseArgs_Precedence(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "blindwalk.toml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
url = "http://gallery.test/search.php"
concurrency = 5
max_depth = 2
output = "JSON"
headers = ["Cookie: a=b"]
`), 0o644))
	t.Setenv("BLINDWALK_CONCURRENCY", "7")

	a, _, err := parseArgs([]string{"--config", cfg, "--max-depth", "3"})
	require.NoError(t, err)
	assert.Equal(t, "http://gallery.test/search.php", a.URL, "file over default")
	assert.Equal(t, 7, a.Concurrency, "environment over file")
	assert.Equal(t, 3, a.MaxDepth, "flag over file")
	assert.Equal(t, "json", a.Output)
	assert.Equal(t, []string{"Cookie: a=b"}, a.Headers)
	assert.Equal(t, defaultParam, a.Param, "default kept")
}

func TestParseArgs_UnknownConfigKey(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "blindwalk.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("concurency = 5\n"), 0o644))

	_, _, err := parseArgs([]string{"--config", cfg})
	require.Error(t, err)
	var se *toml.StrictMissingError
	assert.ErrorAs(t, err, &se)
}

func TestParseArgs_MissingConfig(t *testing.T) {
	_, _, err := parseArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseArgs_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		argv []string
	}{
		{"output", []string{"-o", "xml"}},
		{"format", []string{"-f", "yaml"}},
		{"depth", []string{"-d", "0"}},
		{"concurrency", []string{"-c", "0"}},
		{"zero timeout", []string{"-t", "0"}},
		{"negative", []string{"--retries", "-1"}},
		{"checkpoint without export", []string{"--checkpoint", "5"}},
		{"duplicate characters", []string{"-C", "abca"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, p, err := parseArgs(tc.argv)
			assert.Error(t, err)
			assert.NotNil(t, p)
		})
	}

	_, _, err := parseArgs([]string{"-C", "aa"})
	assert.ErrorIs(t, err, alphabet.ErrDuplicate)
}

func TestParseArgs_Help(t *testing.T) {
	_, _, err := parseArgs([]string{"--help"})
	assert.ErrorIs(t, err, arg.ErrHelp)
	_, _, err = parseArgs([]string{"--version"})
	assert.ErrorIs(t, err, arg.ErrVersion)
}

func TestExecute_Scan(t *testing.T) {
	t.Parallel()
	srv := galleryServer(t, "cafe", "bad/face", ".ed")
	export := filepath.Join(t.TempDir(), "tree.json")

	a := testArguments(srv.URL + "/")
	a.Export = export
	var out bytes.Buffer
	code := execute(context.Background(), a, &out, newLogger(0, io.Discard))
	require.Equal(t, ExitOK, code)

	evs := events(t, &out)
	assert.True(t, hasEvent(evs, "file", "../cafe"))
	assert.True(t, hasEvent(evs, "file", "../.ed"))
	assert.True(t, hasEvent(evs, "dir", "../bad/"))
	assert.True(t, hasEvent(evs, "file", "../bad/face"))

	st := lastOfType(evs, "statistics")
	require.NotNil(t, st)
	assert.Equal(t, "exhausted", st["status"])
	assert.EqualValues(t, 3, st["files"])
	assert.EqualValues(t, 1, st["directories"])
	assert.EqualValues(t, 0, st["failures"])

	f, err := os.Open(export)
	require.NoError(t, err)
	defer f.Close()
	tr, err := fstree.Load(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"../.ed", "../bad/", "../bad/face", "../cafe"}, tr.Paths())
}

func TestExecute_HumanOutput(t *testing.T) {
	t.Parallel()
	srv := galleryServer(t, "cafe")

	a := testArguments(srv.URL)
	a.Output = "human"
	var out bytes.Buffer
	code := execute(context.Background(), a, &out, newLogger(0, io.Discard))
	require.Equal(t, ExitOK, code)

	s := out.String()
	assert.Contains(t, s, "blindwalk v"+version)
	assert.Contains(t, s, "../cafe")
	assert.Contains(t, s, "└── cafe")
	assert.Contains(t, s, "Finished!")
}

func TestExecute_Interrupted(t *testing.T) {
	t.Parallel()
	srv := galleryServer(t, "cafe")
	export := filepath.Join(t.TempDir(), "tree.txt")

	a := testArguments(srv.URL)
	a.Export = export
	a.Format = "list"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	code := execute(ctx, a, &out, newLogger(0, io.Discard))
	assert.Equal(t, ExitInterrupted, code)

	st := lastOfType(events(t, &out), "statistics")
	require.NotNil(t, st)
	assert.Equal(t, "interrupted", st["status"])

	// Partial results are still exported
	b, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestExecute_ErrorBudget(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	a := testArguments(srv.URL)
	a.MaxErrors = 2
	var out bytes.Buffer
	code := execute(context.Background(), a, &out, newLogger(0, io.Discard))
	assert.Equal(t, ExitFailure, code)

	evs := events(t, &out)
	assert.NotNil(t, lastOfType(evs, "error"))
	st := lastOfType(evs, "statistics")
	require.NotNil(t, st)
	assert.Equal(t, "failed", st["status"])
}

func TestExecute_BadEndpoint(t *testing.T) {
	t.Parallel()
	a := testArguments("ftp://gallery.test/")
	var out bytes.Buffer
	assert.Equal(t, ExitFailure, execute(context.Background(), a, &out, newLogger(0, io.Discard)))
}

func TestExecute_ExportFailure(t *testing.T) {
	t.Parallel()
	srv := galleryServer(t, "cafe")

	a := testArguments(srv.URL)
	a.Export = filepath.Join(t.TempDir(), "missing", "tree.json")
	var out bytes.Buffer
	assert.Equal(t, ExitFailure, execute(context.Background(), a, &out, newLogger(0, io.Discard)))
}
