package blindutil

import (
	"bytes"
	"context"
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
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func parse(t *testing.T, argv ...string) arguments {
	t.Helper()
	var a arguments
	p, err := arg.NewParser(arg.Config{Program: "blindutil"}, &a)
	require.NoError(t, err)
	require.NoError(t, p.Parse(argv))
	return a
}

func exportFile(t *testing.T) string {
	t.Helper()
	tr := fstree.New("../")
	_, err := tr.InsertFile(fstree.Path{"images", "old"}, "a.png")
	require.NoError(t, err)
	_, err = tr.InsertFile(nil, "readme")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tree.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tr.Export(f, fstree.FormatJSON))
	require.NoError(t, f.Close())
	return path
}

func TestTree(t *testing.T) {
	t.Parallel()
	a := parse(t, "tree", exportFile(t))
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), a, &out, quietLogger()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, lines[0], "../")
	assert.Contains(t, lines[1], "images/")
	assert.Contains(t, lines[2], "old/")
	assert.Contains(t, lines[3], "a.png")
	assert.Contains(t, lines[4], "readme")
	assert.Equal(t, "2 directories, 2 files", lines[len(lines)-1])
}

func TestList(t *testing.T) {
	t.Parallel()
	path := exportFile(t)

	for _, tc := range []struct {
		flags []string
		want  string
	}{
		{nil, "../images/\n../images/old/\n../images/old/a.png\n../readme\n"},
		{[]string{"--files"}, "../images/old/a.png\n../readme\n"},
		{[]string{"--dirs"}, "../images/\n../images/old/\n"},
	} {
		argv := append([]string{"list"}, tc.flags...)
		a := parse(t, append(argv, path)...)
		var out bytes.Buffer
		require.NoError(t, execute(context.Background(), a, &out, quietLogger()))
		assert.Equal(t, tc.want, out.String(), "%v", tc.flags)
	}
}

func TestList_BadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"root": "", "entries": {"a/b": {"type": "file"}}}`), 0o644))

	a := parse(t, "list", path)
	err := execute(context.Background(), a, io.Discard, quietLogger())
	assert.ErrorIs(t, err, fstree.ErrInvalidSegment)
}

func TestProbe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "../index.php":
			fmt.Fprint(w, "<img src=\"index.png\">")
		case "../gone":
			http.NotFound(w, r)
		default:
			fmt.Fprint(w, "nothing here")
		}
	}))
	defer srv.Close()

	a := parse(t, "probe", "-u", srv.URL, "-p", "q", "-s", "nothing here", "../index.php", "../missing")
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), a, &out, quietLogger()))
	assert.Contains(t, out.String(), "found     ../index.php")
	assert.Contains(t, out.String(), "not found ../missing")

	a = parse(t, "probe", "-u", srv.URL, "-p", "q", "../gone")
	out.Reset()
	assert.ErrorIs(t, execute(context.Background(), a, &out, quietLogger()), errProbeFailed)
	assert.Contains(t, out.String(), "failed")
	assert.Contains(t, out.String(), "404")
}

func TestCheck(t *testing.T) {
	t.Parallel()
	a := parse(t, "check", "cafe.png", ".htaccess")
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), a, &out, quietLogger()))

	a = parse(t, "check", "-C", "abc", "cab", "bad~name")
	out.Reset()
	assert.ErrorIs(t, execute(context.Background(), a, &out, quietLogger()), errUnreachable)
	assert.Contains(t, out.String(), `bad~name (missing "d~nme")`)

	a = parse(t, "check", "-C", "aa", "x")
	assert.ErrorIs(t, execute(context.Background(), a, io.Discard, quietLogger()), alphabet.ErrDuplicate)
}

func TestMissingSubcommand(t *testing.T) {
	t.Parallel()
	assert.Error(t, execute(context.Background(), arguments{}, io.Discard, quietLogger()))
}
