package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderfleet/internal/httpapi/handlers"
	"renderfleet/internal/httpkit"
	"renderfleet/internal/operator"
	"renderfleet/internal/pkg/logger"
	"renderfleet/internal/pkg/middleware"
)

type Deps struct {
	Op   *operator.Operator
	Pool *pgxpool.Pool
	RDB  *redis.Client
	Log  *logger.Logger

	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logger.NewDiscard()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(d.Log))
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Timeout(d.RequestTimeout))

	// ---- CORS (operator UI) ----
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Op:   d.Op,
		Pool: d.Pool,
		RDB:  d.RDB,
		Log:  d.Log,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(d.Log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- DISPATCH ----
	r.Post("/jobs/image", wrap(h.PostImageJob))
	r.Post("/jobs/video", wrap(h.PostVideoJob))

	// ---- FLEET ----
	r.Get("/fleet", wrap(h.GetFleet))
	r.Get("/fleet/heartbeats", wrap(h.GetHeartbeats))

	// ---- OUTBOX ----
	r.Get("/outbox", wrap(h.ListOutbox))
	r.Get("/outbox/{jobName}/images", wrap(h.ListImages))
	r.Get("/outbox/{jobName}/images/{fileName}", wrap(h.StreamImage))

	// ---- HISTORY ----
	r.Get("/dispatches", wrap(h.ListDispatches))
	r.Get("/dispatches/recent", wrap(h.ListRecent))

	return r
}
