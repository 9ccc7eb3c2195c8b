package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chichichkin/LogServer/internal/applog"
)

type RouterConfig struct {
	CORSOrigins []string
	// RateLimitRequests per RateLimitWindow and client IP on the ingestion routes. 0 disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodyBytes      int64
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))
	r.Use(requestLogger)
	if cfg.MaxBodyBytes > 0 {
		r.Use(maxBody(cfg.MaxBodyBytes))
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		r.Post("/log", h.Log)
		r.Post("/log/batch", h.LogBatch)
	})

	r.Get("/channels", h.ListChannels)
	r.Get("/channel/{name}", h.GetChannel)
	r.Post("/channel/{name}/config", h.SetChannelConfig)
	r.Get("/metrics", h.GetMetrics)
	if h.Gatherer != nil {
		r.Handle("/metrics/prometheus", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/flush", h.Flush)
	r.Get("/health", h.Health)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found", nil)
	})
	return r
}

func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		applog.Debug().
			Str("method", r.Method).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
