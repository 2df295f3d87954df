// Package journal keeps a capped Redis list of recent dispatches, newest
// first.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"renderfleet/internal/dispatch"
	"renderfleet/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Event is one successful dispatch.
type Event struct {
	Kind       string    `json:"kind"`
	WorkerID   string    `json:"worker_id"`
	JobID      string    `json:"job_id"`
	Path       string    `json:"path"`
	AssetCount int       `json:"asset_count"`
	At         time.Time `json:"at"`
}

// EventFromReceipt builds the event for r at time at.
func EventFromReceipt(r dispatch.Receipt, at time.Time) Event {
	return Event{
		Kind:       string(r.Kind),
		WorkerID:   r.WorkerID,
		JobID:      r.JobID,
		Path:       r.Path,
		AssetCount: r.AssetCount,
		At:         at.UTC(),
	}
}

type RedisJournal struct {
	rdb *redis.Client
	key string
	max int64
}

// NewRedisJournal keeps at most max events under key.
func NewRedisJournal(rdb *redis.Client, key string, max int64) *RedisJournal {
	if max < 1 {
		max = 1
	}
	return &RedisJournal{rdb: rdb, key: key, max: max}
}

// Publish pushes e and trims the list in one transaction.
func (j *RedisJournal) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeSerialization, "journal.publish", "encode event")
	}
	_, err = j.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, j.key, data)
		pipe.LTrim(ctx, j.key, 0, j.max-1)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "journal.publish", "push event")
	}
	return nil
}

// Recent returns up to n events, newest first. Undecodable entries are
// skipped.
func (j *RedisJournal) Recent(ctx context.Context, n int64) ([]Event, error) {
	if n <= 0 || n > j.max {
		n = j.max
	}
	raw, err := j.rdb.LRange(ctx, j.key, 0, n-1).Result()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "journal.recent", "read events")
	}
	return decodeAll(raw), nil
}

func decodeAll(raw []string) []Event {
	out := make([]Event, 0, len(raw))
	for _, s := range raw {
		var e Event
		if json.Unmarshal([]byte(s), &e) != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}
