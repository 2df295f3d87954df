package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderfleet/internal/operator"
	"renderfleet/internal/pkg/logger"
)

// Deps are the handler dependencies. Pool and RDB are optional and only
// used by the deep health check.
type Deps struct {
	Op   *operator.Operator
	Pool *pgxpool.Pool
	RDB  *redis.Client
	Log  *logger.Logger
}

type Handler struct {
	op   *operator.Operator
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  *logger.Logger
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.NewDiscard()
	}
	return &Handler{
		op:   d.Op,
		pool: d.Pool,
		rdb:  d.RDB,
		log:  d.Log.WithComponent("httpapi"),
	}
}
