// Package fleet reads the heartbeat files render workers leave under
// {root}/heartbeats.
package fleet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"renderfleet/internal/fleetfs"
	"renderfleet/internal/pkg/logger"
)

// Heartbeat is one worker's status file.
type Heartbeat struct {
	Name       string    `json:"name"`
	Raw        string    `json:"raw"`
	ModifiedAt time.Time `json:"modified_at"`
	// WorkerID, Status and Roles are filled when Raw is a JSON object
	// carrying workerId, status and roles.
	WorkerID string   `json:"worker_id,omitempty"`
	Status   string   `json:"status,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Stale    bool     `json:"stale"`
}

type payload struct {
	WorkerID string   `json:"workerId"`
	Status   string   `json:"status"`
	Roles    []string `json:"roles"`
}

// Reader lists heartbeats. Reads are best effort: an unreadable heartbeat
// directory yields no entries and unreadable files are skipped.
type Reader struct {
	dir string
	log *logger.Logger
	now func() time.Time
}

// NewReader returns a Reader for layout.
func NewReader(layout fleetfs.Layout, log *logger.Logger) *Reader {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Reader{
		dir: layout.Heartbeats(),
		log: log.WithComponent("fleet"),
		now: time.Now,
	}
}

type entry struct {
	name string
	data []byte
	mod  time.Time
}

func (r *Reader) scan(ctx context.Context) []entry {
	dirents, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.FromContext(ctx).Debug("heartbeat directory unreadable", "path", r.dir, "error", err)
		return nil
	}

	out := make([]entry, 0, len(dirents))
	skipped := 0
	for _, de := range dirents {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(r.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			skipped++
			continue
		}
		e := entry{name: de.Name(), data: data}
		if info, err := de.Info(); err == nil {
			e.mod = info.ModTime()
		}
		out = append(out, e)
	}

	if skipped > 0 {
		r.log.FromContext(ctx).Warn("skipped unreadable heartbeats", "path", r.dir, "skipped", skipped, "read", len(out))
	}
	return out
}

// Status returns the raw content of every readable heartbeat, in directory
// order. It never fails; the error is reserved for future transports.
func (r *Reader) Status(ctx context.Context) ([]string, error) {
	entries := r.scan(ctx)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.data))
	}
	return out, nil
}

// Heartbeats returns every readable heartbeat sorted by file name. When
// staleAfter is positive, entries not modified within it are flagged Stale.
func (r *Reader) Heartbeats(ctx context.Context, staleAfter time.Duration) ([]Heartbeat, error) {
	entries := r.scan(ctx)
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	now := r.now()
	out := make([]Heartbeat, 0, len(entries))
	for _, e := range entries {
		hb := Heartbeat{Name: e.name, Raw: string(e.data), ModifiedAt: e.mod}

		var p payload
		if json.Unmarshal(e.data, &p) == nil {
			hb.WorkerID = p.WorkerID
			hb.Status = p.Status
			hb.Roles = p.Roles
		}
		if staleAfter > 0 && !e.mod.IsZero() && now.Sub(e.mod) > staleAfter {
			hb.Stale = true
		}
		out = append(out, hb)
	}
	return out, nil
}
