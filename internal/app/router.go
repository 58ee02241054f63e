package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	gate "github.com/mihaimyh/subtrack/middleware/http"
	"github.com/mihaimyh/subtrack/pkg/api"
	zerologadapter "github.com/mihaimyh/subtrack/pkg/entitlement/logger/zerolog"
)

// AccountIDHeader identifies the caller on gated routes. Authentication is
// expected upstream (API gateway or reverse proxy).
const AccountIDHeader = "X-Account-ID"

func (a *App) routes() (http.Handler, error) {
	apiHandler, err := api.NewHandler(api.Config{
		Store: a.store,
		GetAccountID: func(r *http.Request) string {
			return chi.URLParam(r, "id")
		},
		Logger: zerologadapter.NewLogger(a.log),
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(a.log))

	r.Handle("/webhook", a.provider.WebhookHandler())

	checkout := a.provider.CheckoutHandler()
	if origin := a.cfg.Server.CORSOrigin; origin != "" {
		checkout = checkoutCORS(origin)(checkout)
	}
	r.Handle("/checkout", checkout)

	r.Get("/healthz", apiHandler.Health)
	r.Get("/accounts/{id}/entitlement", apiHandler.GetEntitlement)

	r.Group(func(r chi.Router) {
		r.Use(gate.Middleware(gate.Config{
			Store:        a.store,
			GetAccountID: gate.FromHeader(AccountIDHeader),
		}))
		r.Get("/premium", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Cache-Control", "no-store")
			_, _ = w.Write([]byte(`{"has_lifetime_access":true}`))
		})
	})

	if a.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	return r, nil
}

// requestLogger logs one line per request. Bodies and signatures are never logged.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := log.Info()
			if status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", ww.Header().Get("X-Request-ID")).
				Msg("HTTP request")
		})
	}
}

// checkoutCORS allows a single browser origin to call the checkout handler.
func checkoutCORS(origin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:       []string{origin},
		AllowedMethods:       []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type"},
		MaxAge:               600,
		OptionsSuccessStatus: http.StatusNoContent,
	})
}
