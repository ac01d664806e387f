package output

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/connprobe/internal/config"
)

func TestWriteReportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	if err := WriteReportFile(context.Background(), path, config.ReportFormatJSON, Summary{Telemetry: sampleReport()}); err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), `"connectionSetup"`) {
		t.Errorf("report file missing connectionSetup:\n%s", data)
	}

	matches, _ := filepath.Glob(path + ".*.tmp")
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestWriteReportFileWaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	holder := flock.New(path + ".lock")
	if err := holder.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := WriteReportFile(ctx, path, config.ReportFormatText, Summary{Telemetry: sampleReport()}); err == nil {
		t.Fatal("expected error while the lock is held")
	}

	if err := holder.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := WriteReportFile(context.Background(), path, config.ReportFormatText, Summary{Telemetry: sampleReport()}); err != nil {
		t.Fatalf("WriteReportFile after unlock failed: %v", err)
	}
}
