package operator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"renderfleet/internal/dispatch"
	"renderfleet/internal/fleetfs"
	"renderfleet/internal/journal"
	"renderfleet/internal/ledger"
	"renderfleet/internal/pkg/errors"
)

type fakeLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
	err     error
}

func (f *fakeLedger) Record(_ context.Context, e *ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return f.err
}

func (f *fakeLedger) List(_ context.Context, _ ledger.Filter) ([]ledger.Entry, error) {
	return f.entries, nil
}

type fakeJournal struct {
	events []journal.Event
	err    error
}

func (f *fakeJournal) Publish(_ context.Context, e journal.Event) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeJournal) Recent(_ context.Context, n int64) ([]journal.Event, error) {
	if int64(len(f.events)) > n {
		return f.events[:n], nil
	}
	return f.events, nil
}

// driveSource serves opaque IDs and knows each object's stored name.
type driveSource struct {
	files map[string]string
	names map[string]string
}

func (d driveSource) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	body, ok := d.files[ref]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (d driveSource) Name(_ context.Context, ref string) (string, error) {
	name, ok := d.names[ref]
	if !ok {
		return "", fmt.Errorf("lookup %s: not found", ref)
	}
	return name, nil
}

func newOperator(t *testing.T, opts Options, workers ...string) *Operator {
	t.Helper()
	layout, err := fleetfs.NewLayout(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range workers {
		os.MkdirAll(layout.ImageInbox(w), 0o755)
		os.MkdirAll(layout.VideoInbox(w), 0o755)
	}
	return New(layout, opts)
}

func TestDispatchRecordsAndPublishes(t *testing.T) {
	led, jr := &fakeLedger{}, &fakeJournal{}
	op := newOperator(t, Options{Ledger: led, Journal: jr}, "worker001")

	receipt, err := op.DispatchImageJob(context.Background(), "worker001", "", "neon city")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(receipt.JobID, "job_img_") {
		t.Errorf("expected generated image job id, got %q", receipt.JobID)
	}

	if len(led.entries) != 1 || led.entries[0].Status != ledger.StatusDispatched || led.entries[0].JobID != receipt.JobID {
		t.Errorf("unexpected ledger entries %+v", led.entries)
	}
	if len(jr.events) != 1 || jr.events[0].Kind != "image" {
		t.Errorf("unexpected journal events %+v", jr.events)
	}
}

func TestFailedDispatchIsRecordedNotPublished(t *testing.T) {
	led, jr := &fakeLedger{}, &fakeJournal{}
	op := newOperator(t, Options{Ledger: led, Journal: jr})

	_, err := op.DispatchVideoJob(context.Background(), "ghost", "job_vid_1", []dispatch.Task{{SourcePath: "/nope.png"}})
	if !dispatch.IsKind(err, dispatch.ErrWorkerInboxMissing) {
		t.Fatalf("expected missing inbox, got %v", err)
	}

	if len(led.entries) != 1 || led.entries[0].Status != ledger.StatusFailed || led.entries[0].Error == "" {
		t.Errorf("expected failed ledger entry, got %+v", led.entries)
	}
	if led.entries[0].AssetCount != 1 {
		t.Errorf("failed entry should count requested tasks, got %d", led.entries[0].AssetCount)
	}
	if len(jr.events) != 0 {
		t.Errorf("failed dispatch must not be journaled, got %+v", jr.events)
	}
}

func TestSideChannelFailuresDoNotFailDispatch(t *testing.T) {
	led := &fakeLedger{err: fmt.Errorf("connection refused")}
	jr := &fakeJournal{err: fmt.Errorf("redis down")}
	op := newOperator(t, Options{Ledger: led, Journal: jr}, "w1")

	if _, err := op.DispatchImageJob(context.Background(), "w1", "job", "p"); err != nil {
		t.Fatalf("ledger and journal failures must not surface, got %v", err)
	}
}

func TestVideoDefaultsAssetNames(t *testing.T) {
	op := newOperator(t, Options{}, "w1")
	src := filepath.Join(t.TempDir(), "shot_01.png")
	os.WriteFile(src, []byte("img"), 0o644)

	receipt, err := op.DispatchVideoJob(context.Background(), "w1", "", []dispatch.Task{{SourcePath: src, Prompt: "pan"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(receipt.JobID, "job_vid_") {
		t.Errorf("expected generated video job id, got %q", receipt.JobID)
	}

	m, err := op.Manifest(context.Background(), "w1", receipt.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := m.Prompt("shot_01.png"); !ok || p != "pan" {
		t.Errorf("expected asset named after source, got names %v", m.Names())
	}
}

func TestVideoAssetNamesFromSourceLookup(t *testing.T) {
	src := driveSource{
		files: map[string]string{"gdrive://1AbC": "mp4", "gdrive://2XyZ": "png"},
		names: map[string]string{"gdrive://1AbC": "sunset.mp4"},
	}
	led := &fakeLedger{}
	op := newOperator(t, Options{Sources: src, Ledger: led}, "w1")

	receipt, err := op.DispatchVideoJob(context.Background(), "w1", "job_vid_1", []dispatch.Task{
		{SourcePath: "gdrive://1AbC", Prompt: "dusk"},
		{SourcePath: "gdrive://2XyZ", AssetName: "still.png", Prompt: "noon"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := listNames(t, receipt.Path); got != "READY,prompts.json,still.png,sunset.mp4" {
		t.Errorf("unexpected job contents %s", got)
	}

	_, err = op.DispatchVideoJob(context.Background(), "w1", "job_vid_2", []dispatch.Task{{SourcePath: "gdrive://2XyZ"}})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error when the name lookup fails, got %v", err)
	}
	if v, _ := errors.GetField(err, "field"); v != "asset_name" {
		t.Errorf("expected asset_name field, got %v", v)
	}
	if _, statErr := os.Stat(op.Layout().VideoJobDir("w1", "job_vid_2")); !os.IsNotExist(statErr) {
		t.Error("a failed lookup must not create the job directory")
	}
	if n := len(led.entries); n != 2 || led.entries[1].Status != ledger.StatusFailed {
		t.Errorf("expected the failed lookup to be recorded, got %+v", led.entries)
	}
}

func listNames(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return strings.Join(names, ",")
}

func TestDefaultAssetName(t *testing.T) {
	tests := map[string]string{
		"/home/me/renders/clip.png":  "clip.png",
		"file:///tmp/a.jpg":          "a.jpg",
		"minio://assets/shots/b.png": "b.png",
		"gdrive://1AbCdEf":           "1AbCdEf",
		"":                           "",
	}
	for in, want := range tests {
		if got := DefaultAssetName(in); got != want {
			t.Errorf("DefaultAssetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestManifestErrors(t *testing.T) {
	op := newOperator(t, Options{}, "w1")

	if _, err := op.Manifest(context.Background(), "w1", "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := op.Manifest(context.Background(), "w1", ".."); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHistoryAndRecentUnavailable(t *testing.T) {
	op := newOperator(t, Options{})

	if _, err := op.History(context.Background(), ledger.Filter{}); !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected unavailable without ledger, got %v", err)
	}
	if _, err := op.Recent(context.Background(), 10); !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("expected unavailable without journal, got %v", err)
	}
}

func TestReadSide(t *testing.T) {
	op := newOperator(t, Options{})
	layout := op.Layout()

	os.MkdirAll(layout.Heartbeats(), 0o755)
	os.WriteFile(filepath.Join(layout.Heartbeats(), "worker001"), []byte("idle"), 0o644)
	os.MkdirAll(filepath.Join(layout.ImageOutbox(), "batch"), 0o755)
	os.WriteFile(filepath.Join(layout.ImageOutbox(), "batch", "take1.png"), []byte("x"), 0o644)

	status, _ := op.FleetStatus(context.Background())
	if len(status) != 1 || status[0] != "idle" {
		t.Errorf("unexpected status %v", status)
	}
	jobs, _ := op.OutboxJobs(context.Background())
	if len(jobs) != 1 || jobs[0] != "batch" {
		t.Errorf("unexpected jobs %v", jobs)
	}
	images, _ := op.JobImages(context.Background(), "batch")
	if len(images) != 1 || filepath.Base(images[0]) != "take1.png" {
		t.Errorf("unexpected images %v", images)
	}
}
