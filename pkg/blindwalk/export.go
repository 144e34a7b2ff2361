package blindwalk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MaderNoob/art-gallery-scanner/pkg/fstree"

	log "github.com/sirupsen/logrus"
)

// writeExport writes t to path in format f. The data goes to a temporary
// file in the same directory first, which then replaces path.
func writeExport(t *fstree.Tree, path string, f fstree.Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}

	if err := t.Export(tmp, f); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", f, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// checkpoint rewrites the export every interval until ctx is done
func checkpoint(ctx context.Context, t *fstree.Tree, path string, f fstree.Format, every time.Duration, logger log.FieldLogger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := writeExport(t, path, f); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			files, dirs := t.Counts()
			logger.WithFields(log.Fields{"file": path, "files": files, "dirs": dirs}).Debug("Wrote checkpoint")
		}
	}
}
