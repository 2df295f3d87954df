package fleet

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"renderfleet/internal/fleetfs"
	"renderfleet/internal/pkg/logger"
)

func setup(t *testing.T) (fleetfs.Layout, string) {
	t.Helper()
	layout, err := fleetfs.NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir := layout.Heartbeats()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return layout, dir
}

func TestStatusSkipsUnreadableEntries(t *testing.T) {
	layout, dir := setup(t)
	os.WriteFile(filepath.Join(dir, "worker001"), []byte(`{"workerId":"worker001","status":"idle","roles":["image"]}`), 0o644)
	os.WriteFile(filepath.Join(dir, "worker002"), []byte("busy"), 0o644)
	// A directory cannot be read as a file, whoever runs the test.
	os.Mkdir(filepath.Join(dir, "worker003"), 0o755)

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})

	got, err := NewReader(layout, log).Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "busy" || !strings.HasPrefix(got[1], `{"workerId":"worker001"`) {
		t.Errorf("expected the two readable heartbeats, got %q", got)
	}
	if !strings.Contains(buf.String(), `"skipped":1`) {
		t.Errorf("expected skip count to be logged, got %s", buf.String())
	}
}

func TestStatusMissingDirectory(t *testing.T) {
	layout, err := fleetfs.NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewReader(layout, nil).Status(context.Background())
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %q, %v", got, err)
	}
	if got == nil {
		t.Error("expected a non-nil empty slice")
	}
}

func TestHeartbeatsParsesAndFlagsStale(t *testing.T) {
	layout, dir := setup(t)
	os.WriteFile(filepath.Join(dir, "b"), []byte(`{"workerId":"worker002","status":"rendering","roles":["video","image"]}`), 0o644)
	os.WriteFile(filepath.Join(dir, "a"), []byte("plain text"), 0o644)

	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(filepath.Join(dir, "a"), old, old); err != nil {
		t.Fatal(err)
	}

	r := NewReader(layout, nil)
	got, err := r.Heartbeats(context.Background(), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("expected entries sorted by name, got %+v", got)
	}

	if got[0].WorkerID != "" || got[0].Raw != "plain text" {
		t.Errorf("non-JSON heartbeat should only carry raw text: %+v", got[0])
	}
	if !got[0].Stale {
		t.Error("expected old heartbeat to be stale")
	}

	if got[1].WorkerID != "worker002" || got[1].Status != "rendering" || len(got[1].Roles) != 2 {
		t.Errorf("unexpected parsed heartbeat %+v", got[1])
	}
	if got[1].Stale {
		t.Error("fresh heartbeat flagged stale")
	}

	unflagged, _ := r.Heartbeats(context.Background(), 0)
	for _, hb := range unflagged {
		if hb.Stale {
			t.Errorf("%s flagged stale without a threshold", hb.Name)
		}
	}
}
