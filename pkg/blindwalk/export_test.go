package blindwalk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MaderNoob/art-gallery-scanner/pkg/discovery"
	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) *fstree.Tree {
	t.Helper()
	tr := fstree.New("../")
	_, err := tr.InsertFile(fstree.Path{"images"}, "a.png")
	require.NoError(t, err)
	_, err = tr.InsertFile(nil, "readme")
	require.NoError(t, err)
	return tr
}

func TestWriteExport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	require.NoError(t, writeExport(sampleTree(t), path, fstree.FormatList))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "../images/\n../images/a.png\n../readme\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteExport_MissingDirectory(t *testing.T) {
	t.Parallel()
	err := writeExport(sampleTree(t), filepath.Join(t.TempDir(), "nope", "tree.json"), fstree.FormatJSON)
	assert.Error(t, err)
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tree.json")
	tr := sampleTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- checkpoint(ctx, tr, path, fstree.FormatJSON, 10*time.Millisecond, newLogger(0, io.Discard)) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	loaded, err := fstree.Load(f)
	require.NoError(t, err)
	assert.Equal(t, tr.Paths(), loaded.Paths())
}

func TestCheckpoint_WriteError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nope", "tree.json")
	err := checkpoint(context.Background(), sampleTree(t), path, fstree.FormatJSON, time.Millisecond, newLogger(0, io.Discard))
	assert.ErrorContains(t, err, "checkpoint")
}

func TestPrinter_JSON(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	p := newPrinter(&out, "json")
	p.root = "../"
	p.human("not shown")
	p.FileFound(fstree.Path{"images"}, "a.png")
	p.DirFound(fstree.Path{"images"})
	p.ProbeFailed(discovery.Probe{Dir: fstree.Path{"images"}, Name: "b", Depth: 1}, assert.AnError)

	var got []map[string]string
	dec := json.NewDecoder(&out)
	for dec.More() {
		var m map[string]string
		require.NoError(t, dec.Decode(&m))
		got = append(got, m)
	}
	assert.Equal(t, []map[string]string{
		{"type": "file", "path": "../images/a.png"},
		{"type": "dir", "path": "../images/"},
		{"type": "error", "candidate": "../images/b*/", "error": assert.AnError.Error()},
	}, got)
}

func TestPrinter_Human(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	p := newPrinter(&out, "human")
	p.root = "../"
	p.json(resultOutput{Type: "file", Path: "hidden"})
	p.FileFound(nil, "readme")
	p.ProbeFailed(discovery.Probe{Name: "x"}, assert.AnError)

	s := out.String()
	assert.Contains(t, s, "../readme")
	assert.NotContains(t, s, "hidden")
	assert.NotContains(t, s, assert.AnError.Error())
}
