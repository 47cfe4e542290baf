package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/jurassik/jurassik/internal/supervisor"
)

// StatusSource reports the state of the supervised processes.
type StatusSource interface {
	Statuses() []supervisor.Status
}

// NewHealthHandler answers every GET with 200 ok.
func NewHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// NewProcessesHandler lists the status of every process as JSON.
func NewProcessesHandler(source StatusSource, log *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		statuses := source.Statuses()
		if statuses == nil {
			statuses = []supervisor.Status{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			log.Error("failed to encode statuses", zap.Error(err))
		}
	})
}

// StatusHandlers provides the read-only status routes.
func StatusHandlers(source StatusSource, log *zap.Logger) []*HttpHandler {
	return []*HttpHandler{
		{Name: "/health", Handler: NewHealthHandler()},
		{Name: "/processes", Handler: NewProcessesHandler(source, log)},
	}
}
