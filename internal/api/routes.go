package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Run routes
	api.HandleFunc("/runs", handler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/latest", handler.GetLatestRun).Methods("GET")
	api.HandleFunc("/runs/date/{date}", handler.GetRunByDate).Methods("GET")
	api.HandleFunc("/runs/{id}", handler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/failures", handler.GetRunFailures).Methods("GET")

	// Company routes
	api.HandleFunc("/companies/{ticker}/scores", handler.GetCompanyScores).Methods("GET")
	api.HandleFunc("/companies/{ticker}/prices", handler.GetPriceHistory).Methods("GET")
	api.HandleFunc("/companies/{ticker}/prices/latest", handler.GetLatestPrice).Methods("GET")

	api.HandleFunc("/score", handler.Score).Methods("POST")

	return r
}

// WithMiddleware wraps the router with access logging and panic recovery,
// both written through log
func WithMiddleware(r http.Handler, log zerolog.Logger) http.Handler {
	access := log.With().Str("module", "http").Logger()
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{access}))(
		handlers.CombinedLoggingHandler(access, r),
	)
}

// recoveryLogger adapts zerolog to the handlers.RecoveryHandlerLogger interface
type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}
