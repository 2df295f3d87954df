// Package operator is the command surface shared by the HTTP API and the
// fleetctl CLI. It binds the dispatcher and the read-side scanners to one
// queue tree and records every dispatch in the optional ledger and journal.
package operator

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"renderfleet/internal/dispatch"
	"renderfleet/internal/fleet"
	"renderfleet/internal/fleetfs"
	"renderfleet/internal/ids"
	"renderfleet/internal/journal"
	"renderfleet/internal/ledger"
	"renderfleet/internal/manifest"
	"renderfleet/internal/outbox"
	"renderfleet/internal/pkg/errors"
	"renderfleet/internal/pkg/logger"
	"renderfleet/internal/sources"
)

// Ledger persists dispatch attempts.
type Ledger interface {
	Record(ctx context.Context, e *ledger.Entry) error
	List(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
}

// Journal keeps recent successful dispatches.
type Journal interface {
	Publish(ctx context.Context, e journal.Event) error
	Recent(ctx context.Context, n int64) ([]journal.Event, error)
}

type Options struct {
	Sources          dispatch.Source
	Log              *logger.Logger
	CleanupOnFailure bool
	// Ledger and Journal are optional.
	Ledger  Ledger
	Journal Journal
}

// assetNamer looks up the stored file name behind a source reference.
// sources.Resolver implements it.
type assetNamer interface {
	Name(ctx context.Context, ref string) (string, error)
}

type Operator struct {
	layout     fleetfs.Layout
	namer      assetNamer
	dispatcher *dispatch.Dispatcher
	fleet      *fleet.Reader
	outbox     *outbox.Scanner
	ledger     Ledger
	journal    Journal
	log        *logger.Logger
	now        func() time.Time
}

func New(layout fleetfs.Layout, opts Options) *Operator {
	if opts.Log == nil {
		opts.Log = logger.NewDiscard()
	}
	if opts.Sources == nil {
		opts.Sources = sources.NewResolver()
	}
	namer, _ := opts.Sources.(assetNamer)
	return &Operator{
		layout: layout,
		namer:  namer,
		dispatcher: dispatch.New(layout, dispatch.Options{
			Sources:          opts.Sources,
			Log:              opts.Log,
			CleanupOnFailure: opts.CleanupOnFailure,
		}),
		fleet:   fleet.NewReader(layout, opts.Log),
		outbox:  outbox.NewScanner(layout, opts.Log),
		ledger:  opts.Ledger,
		journal: opts.Journal,
		log:     opts.Log.WithComponent("operator"),
		now:     time.Now,
	}
}

func (o *Operator) Layout() fleetfs.Layout { return o.layout }

// DispatchImageJob dispatches prompt to workerID. An empty jobID is replaced
// by a generated job_img_ ID.
func (o *Operator) DispatchImageJob(ctx context.Context, workerID, jobID, prompt string) (dispatch.Receipt, error) {
	if jobID == "" {
		jobID = ids.ImageJob()
	}
	ctx = logger.ContextWithJobID(logger.ContextWithWorkerID(ctx, workerID), jobID)

	receipt, err := o.dispatcher.DispatchImageJob(ctx, workerID, jobID, prompt)
	o.observe(ctx, fleetfs.KindImage, workerID, jobID, 0, receipt, err)
	return receipt, err
}

// DispatchVideoJob dispatches tasks to workerID. An empty jobID is replaced
// by a generated job_vid_ ID. An empty AssetName is filled from the source:
// the provider's stored file name where it has one (Drive), else the base
// name of the reference.
func (o *Operator) DispatchVideoJob(ctx context.Context, workerID, jobID string, tasks []dispatch.Task) (dispatch.Receipt, error) {
	if jobID == "" {
		jobID = ids.VideoJob()
	}
	ctx = logger.ContextWithJobID(logger.ContextWithWorkerID(ctx, workerID), jobID)

	named := make([]dispatch.Task, len(tasks))
	for i, t := range tasks {
		if t.AssetName == "" {
			name, err := o.assetName(ctx, t.SourcePath)
			if err != nil {
				o.log.FromContext(ctx).WithError(err).Warn("asset name lookup failed", "task", i)
				verr := errors.ValidationField("asset_name", fmt.Sprintf("task %d: asset_name is required when the source name cannot be looked up", i))
				verr.Op = "operator.dispatch_video"
				o.observe(ctx, fleetfs.KindVideo, workerID, jobID, len(tasks), dispatch.Receipt{}, verr)
				return dispatch.Receipt{}, verr
			}
			t.AssetName = name
		}
		named[i] = t
	}

	receipt, err := o.dispatcher.DispatchVideoJob(ctx, workerID, jobID, named)
	o.observe(ctx, fleetfs.KindVideo, workerID, jobID, len(named), receipt, err)
	return receipt, err
}

func (o *Operator) assetName(ctx context.Context, ref string) (string, error) {
	if o.namer == nil {
		return DefaultAssetName(ref), nil
	}
	return o.namer.Name(ctx, ref)
}

// DefaultAssetName is the last element of a source reference's key.
func DefaultAssetName(ref string) string {
	_, key := sources.Parse(ref)
	return sources.BaseName(key)
}

func (o *Operator) observe(ctx context.Context, kind fleetfs.Kind, workerID, jobID string, tasks int, r dispatch.Receipt, err error) {
	log := o.log.FromContext(ctx)

	if o.ledger != nil {
		e := &ledger.Entry{Kind: string(kind), WorkerID: workerID, JobID: jobID, AssetCount: tasks, Status: ledger.StatusDispatched}
		if err != nil {
			e.Status = ledger.StatusFailed
			e.Error = err.Error()
		} else {
			e.AssetCount = r.AssetCount
		}
		if lerr := o.ledger.Record(ctx, e); lerr != nil {
			log.LogError(ctx, "failed to record dispatch", lerr)
		}
	}

	if err != nil {
		log.WithError(err).Warn("dispatch failed", "kind", kind, "error_kind", dispatch.KindOf(err))
		return
	}

	if o.journal != nil {
		if jerr := o.journal.Publish(ctx, journal.EventFromReceipt(r, o.now())); jerr != nil {
			log.LogError(ctx, "failed to publish dispatch event", jerr)
		}
	}
}

// FleetStatus returns the raw content of every readable heartbeat.
func (o *Operator) FleetStatus(ctx context.Context) ([]string, error) {
	return o.fleet.Status(ctx)
}

// Heartbeats returns parsed heartbeats, flagging those older than
// staleAfter when it is positive.
func (o *Operator) Heartbeats(ctx context.Context, staleAfter time.Duration) ([]fleet.Heartbeat, error) {
	return o.fleet.Heartbeats(ctx, staleAfter)
}

// OutboxJobs lists the finished image batches.
func (o *Operator) OutboxJobs(ctx context.Context) ([]string, error) {
	return o.outbox.Jobs(ctx)
}

// JobImages lists the images of one batch.
func (o *Operator) JobImages(ctx context.Context, folder string) ([]string, error) {
	return o.outbox.Images(ctx, folder)
}

// OpenImage opens one outbox image for streaming.
func (o *Operator) OpenImage(ctx context.Context, folder, fileName string) (io.ReadCloser, string, int64, error) {
	return o.outbox.OpenImage(ctx, folder, fileName)
}

// Manifest reads the prompts.json of a dispatched video job.
func (o *Operator) Manifest(_ context.Context, workerID, jobID string) (*manifest.Manifest, error) {
	const op = "operator.manifest"
	for field, v := range map[string]string{"worker_id": workerID, "job_id": jobID} {
		if err := fleetfs.ValidSegment(v); err != nil {
			e := errors.ValidationField(field, "invalid "+field+": "+err.Error())
			e.Op = op
			return nil, e
		}
	}

	path := filepath.Join(o.layout.VideoJobDir(workerID, jobID), fleetfs.ManifestFile)
	m, err := manifest.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound("manifest", workerID+"/"+jobID)
		}
		return nil, errors.WrapWithCode(err, errors.CodeIO, op, "read "+path)
	}
	return m, nil
}

// History lists ledger entries. It fails with CodeUnavailable when no
// ledger is configured.
func (o *Operator) History(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	if o.ledger == nil {
		return nil, errors.Unavailable("ledger")
	}
	return o.ledger.List(ctx, f)
}

// Recent lists the newest journal events. It fails with CodeUnavailable
// when no journal is configured.
func (o *Operator) Recent(ctx context.Context, n int64) ([]journal.Event, error) {
	if o.journal == nil {
		return nil, errors.Unavailable("journal")
	}
	return o.journal.Recent(ctx, n)
}
