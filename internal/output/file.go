package output

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/connprobe/internal/config"
)

const lockRetryDelay = 50 * time.Millisecond

// WriteReportFile renders s into path. A sibling lock file serializes
// writers, and the content is swapped in with a rename so readers never see
// a partial report.
func WriteReportFile(ctx context.Context, path string, format config.ReportFormat, s Summary) error {
	var buf bytes.Buffer
	if err := Write(&buf, format, s); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock report file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock report file: %s is held by another writer", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}
