package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	// RequestTimeout bounds every request; searches fetch several pages.
	RequestTimeout time.Duration
	// SearchLimiter guards POST /api/v1/search. Nil disables limiting.
	SearchLimiter *RateLimiter
	// AccessLog enables chi's request logger.
	AccessLog bool
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sites", h.ListSites)
		r.Get("/exchange-rate", h.GetExchangeRate)
		r.Get("/quotes", h.ListQuotes)

		r.Group(func(r chi.Router) {
			if opts.SearchLimiter != nil {
				r.Use(opts.SearchLimiter.Middleware)
			}
			r.Post("/search", h.Search)
		})
	})

	return r
}
