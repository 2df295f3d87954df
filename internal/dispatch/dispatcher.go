// Package dispatch hands jobs to render workers by writing them into the
// workers' inbox directories.
//
// An image job is a single prompt file. A video job is a directory holding
// the source assets, a prompts.json manifest and a zero-byte READY sentinel.
// READY is always written last, so a worker that only picks up directories
// containing READY never sees a half-written job.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"renderfleet/internal/fleetfs"
	"renderfleet/internal/manifest"
	"renderfleet/internal/pkg/errors"
	"renderfleet/internal/pkg/logger"
	"renderfleet/internal/sources"
)

// Source opens the bytes behind an asset reference.
type Source interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Task is one asset of a video job.
type Task struct {
	// SourcePath is a local path or a scheme-qualified reference
	// (gdrive://, minio://) understood by the configured Source.
	SourcePath string `json:"source_path"`
	// AssetName is the file name inside the job directory.
	AssetName string `json:"asset_name"`
	Prompt    string `json:"prompt"`
}

// Receipt describes a completed dispatch.
type Receipt struct {
	Kind       fleetfs.Kind `json:"kind"`
	WorkerID   string       `json:"worker_id"`
	JobID      string       `json:"job_id"`
	Path       string       `json:"path"`
	AssetCount int          `json:"asset_count"`
	Message    string       `json:"message"`
}

// Options configures a Dispatcher.
type Options struct {
	// Sources resolves Task.SourcePath. Defaults to local files only.
	Sources Source
	Log     *logger.Logger
	// CleanupOnFailure removes a video job directory created by a failed
	// dispatch. Directories that existed before the call are never removed.
	CleanupOnFailure bool
}

// Step identifies a point in the video protocol, used by tests to inspect
// the tree between writes.
type Step string

const (
	StepJobDir          Step = "job_dir"
	StepAssetCopied     Step = "asset_copied"
	StepManifestWritten Step = "manifest_written"
	StepReady           Step = "ready"
)

// Dispatcher writes jobs under one queue tree. Dispatches to the same
// worker and kind are serialized; different workers proceed in parallel.
type Dispatcher struct {
	layout           fleetfs.Layout
	sources          Source
	log              *logger.Logger
	cleanupOnFailure bool

	locks sync.Map

	afterStep func(step Step, detail string)
}

// New returns a Dispatcher for layout.
func New(layout fleetfs.Layout, opts Options) *Dispatcher {
	if opts.Sources == nil {
		opts.Sources = sources.NewResolver()
	}
	if opts.Log == nil {
		opts.Log = logger.NewDiscard()
	}
	return &Dispatcher{
		layout:           layout,
		sources:          opts.Sources,
		log:              opts.Log.WithComponent("dispatch"),
		cleanupOnFailure: opts.CleanupOnFailure,
	}
}

// Layout returns the tree the dispatcher writes into.
func (d *Dispatcher) Layout() fleetfs.Layout { return d.layout }

// DispatchImageJob writes prompt to {inbox}/{jobID}.txt for workerID. An
// existing file with the same job ID is overwritten.
func (d *Dispatcher) DispatchImageJob(ctx context.Context, workerID, jobID, prompt string) (Receipt, error) {
	const op = "dispatch.image"
	if err := validateIDs(op, workerID, jobID); err != nil {
		return Receipt{}, err
	}

	unlock := d.lock(fleetfs.KindImage, workerID)
	defer unlock()

	log := d.log.FromContext(ctx).WithWorkerID(workerID).WithJobID(jobID)
	f := failure{op: op, workerID: workerID, jobID: jobID}

	inbox := d.layout.ImageInbox(workerID)
	if err := requireDir(inbox); err != nil {
		log.WithError(err).Warn("worker inbox missing", "path", inbox)
		f.kind = ErrWorkerInboxMissing
		return Receipt{}, f.wrap(err, "inbox for worker %s does not exist", workerID)
	}

	path := d.layout.ImageJobFile(workerID, jobID)
	if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
		log.WithError(err).Warn("image job write failed", "path", path)
		f.kind = ErrWriteFailed
		return Receipt{}, f.wrap(err, "write image job %s failed", jobID)
	}

	log.Info("image job dispatched", "path", path, "bytes", len(prompt))

	return Receipt{
		Kind:     fleetfs.KindImage,
		WorkerID: workerID,
		JobID:    jobID,
		Path:     path,
		Message:  fmt.Sprintf("Image Job %s dispatched!", jobID),
	}, nil
}

// DispatchVideoJob creates {inbox}/{jobID}/, copies every task's asset into
// it in order, writes prompts.json and finally READY. A later task with the
// same AssetName overwrites the earlier file and prompt. Re-dispatching an
// existing job ID overwrites in place and leaves unrelated files behind.
func (d *Dispatcher) DispatchVideoJob(ctx context.Context, workerID, jobID string, tasks []Task) (Receipt, error) {
	const op = "dispatch.video"
	if err := validateIDs(op, workerID, jobID); err != nil {
		return Receipt{}, err
	}

	m := manifest.New()
	for _, t := range tasks {
		if err := validateAsset(op, workerID, jobID, t.AssetName); err != nil {
			return Receipt{}, err
		}
		m.Set(t.AssetName, t.Prompt)
	}

	f := failure{op: op, workerID: workerID, jobID: jobID}

	// Encoding only depends on the input, so reject bad prompts before
	// touching the tree.
	data, err := m.Encode()
	if err != nil {
		f.kind = ErrManifestEncodeFailed
		var encErr *manifest.EncodeError
		if errors.As(err, &encErr) {
			f.asset = encErr.AssetName
		}
		return Receipt{}, f.wrap(err, "encode %s", fleetfs.ManifestFile)
	}

	unlock := d.lock(fleetfs.KindVideo, workerID)
	defer unlock()

	log := d.log.FromContext(ctx).WithWorkerID(workerID).WithJobID(jobID)

	inbox := d.layout.VideoInbox(workerID)
	if err := requireDir(inbox); err != nil {
		log.WithError(err).Warn("worker inbox missing", "path", inbox)
		f.kind = ErrWorkerInboxMissing
		return Receipt{}, f.wrap(err, "inbox for worker %s does not exist", workerID)
	}

	jobDir := d.layout.VideoJobDir(workerID, jobID)
	_, statErr := os.Stat(jobDir)
	created := errors.Is(statErr, fs.ErrNotExist)

	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		log.WithError(err).Warn("job directory create failed", "path", jobDir)
		f.kind = ErrDirectoryCreateFailed
		return Receipt{}, f.wrap(err, "create directory for job %s failed", jobID)
	}
	d.step(StepJobDir, jobDir)

	fail := func(e *errors.Error) (Receipt, error) {
		if d.cleanupOnFailure && created {
			if rmErr := os.RemoveAll(jobDir); rmErr != nil {
				log.LogError(ctx, "failed to remove partial job directory", rmErr, "path", jobDir)
			} else {
				log.Warn("removed partial job directory", "path", jobDir)
			}
		}
		return Receipt{}, e
	}

	for _, t := range tasks {
		dst := filepath.Join(jobDir, t.AssetName)
		if err := d.copyAsset(ctx, t.SourcePath, dst); err != nil {
			log.WithError(err).Warn("asset copy failed", "source", t.SourcePath, "path", dst)
			f.kind = ErrAssetCopyFailed
			f.asset = t.AssetName
			return fail(f.wrap(err, "copy asset %s failed", t.AssetName))
		}
		d.step(StepAssetCopied, t.AssetName)
	}

	manifestPath := filepath.Join(jobDir, fleetfs.ManifestFile)
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		log.WithError(err).Warn("manifest write failed", "path", manifestPath)
		f.kind = ErrManifestWriteFailed
		return fail(f.wrap(err, "write %s failed", fleetfs.ManifestFile))
	}
	d.step(StepManifestWritten, manifestPath)

	readyPath := filepath.Join(jobDir, fleetfs.ReadyFile)
	if err := os.WriteFile(readyPath, nil, 0o644); err != nil {
		log.WithError(err).Warn("sentinel write failed", "path", readyPath)
		f.kind = ErrSentinelWriteFailed
		return fail(f.wrap(err, "write %s failed", fleetfs.ReadyFile))
	}
	d.step(StepReady, readyPath)

	log.Info("video job dispatched", "path", jobDir, "assets", m.Len(), "tasks", len(tasks))

	return Receipt{
		Kind:       fleetfs.KindVideo,
		WorkerID:   workerID,
		JobID:      jobID,
		Path:       jobDir,
		AssetCount: m.Len(),
		Message:    fmt.Sprintf("Video Job %s dispatched with %d assets!", jobID, m.Len()),
	}, nil
}

func (d *Dispatcher) copyAsset(ctx context.Context, ref, dst string) error {
	src, err := d.sources.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *Dispatcher) lock(kind fleetfs.Kind, workerID string) func() {
	v, _ := d.locks.LoadOrStore(string(kind)+"/"+workerID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (d *Dispatcher) step(s Step, detail string) {
	if d.afterStep != nil {
		d.afterStep(s, detail)
	}
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func validateIDs(op, workerID, jobID string) error {
	f := failure{op: op, kind: ErrInvalidSegment, workerID: workerID, jobID: jobID}
	if err := fleetfs.ValidSegment(workerID); err != nil {
		return f.wrap(nil, "invalid worker id: %v", err).WithField("field", "worker_id")
	}
	if err := fleetfs.ValidSegment(jobID); err != nil {
		return f.wrap(nil, "invalid job id: %v", err).WithField("field", "job_id")
	}
	return nil
}

func validateAsset(op, workerID, jobID, name string) error {
	f := failure{op: op, kind: ErrInvalidSegment, workerID: workerID, jobID: jobID, asset: name}
	if err := fleetfs.ValidSegment(name); err != nil {
		return f.wrap(nil, "invalid asset name: %v", err).WithField("field", "asset_name")
	}
	if fleetfs.Reserved(name) {
		return f.wrap(nil, "asset name %q is reserved", name).WithField("field", "asset_name")
	}
	return nil
}
