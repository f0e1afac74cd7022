package http

import (
	"net/http"
)

type RouterConfig struct {
	Items      *ItemHandler
	Agenda     *AgendaHandler
	Health     *HealthHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter registers the API routes. Unsupported methods on a known path are
// answered with 405 and an Allow header by the mux.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Items != nil {
		mux.HandleFunc("POST /items", cfg.Items.Create)
		mux.HandleFunc("GET /items/{id}", cfg.Items.Get)
		mux.HandleFunc("PUT /items/{id}", cfg.Items.Update)
		mux.HandleFunc("DELETE /items/{id}", cfg.Items.Delete)
		mux.HandleFunc("PUT /items/{id}/occurrences/{date}", cfg.Items.EditOccurrence)
		mux.HandleFunc("DELETE /items/{id}/occurrences/{date}", cfg.Items.DeleteOccurrence)
		mux.HandleFunc("POST /items/{id}/complete", cfg.Items.Complete)
		mux.HandleFunc("DELETE /items/{id}/complete", cfg.Items.Uncomplete)
	}

	if cfg.Agenda != nil {
		mux.HandleFunc("GET /agenda", cfg.Agenda.Agenda)
		mux.HandleFunc("GET /calendar.ics", cfg.Agenda.Calendar)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /healthz", cfg.Health.Health)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
