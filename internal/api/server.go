// Package api provides the HTTP server for the scrape marketplace.
// Reads are open; every mutating route requires a signed request and runs
// as the signer.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/health"
	"github.com/scrape-network/scrape/internal/infra/sqlite"
	"github.com/scrape-network/scrape/internal/program"
)

// DefaultMaxRequestAge bounds the clock skew accepted on signed requests.
const DefaultMaxRequestAge = 5 * time.Minute

// Server is the scrape HTTP API server.
type Server struct {
	prog           *program.Program
	db             *sqlite.DB
	tokens         *token.Service
	health         *health.Checker
	metricsEnabled bool
	maxRequestAge  time.Duration
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(prog *program.Program, db *sqlite.DB) *Server {
	return &Server{
		prog:          prog,
		db:            db,
		tokens:        token.NewService(db),
		maxRequestAge: DefaultMaxRequestAge,
		now:           time.Now,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth attaches a health checker to /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetMaxRequestAge sets the accepted signed-request skew.
func (s *Server) SetMaxRequestAge(d time.Duration) { s.maxRequestAge = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		// Reads
		r.Get("/vault", s.handleGetVault)
		r.Get("/registry", s.handleGetRegistry)
		r.Get("/clients/{owner}", s.handleGetClient)
		r.Get("/endpoints/{owner}", s.handleGetEndpoint)
		r.Get("/providers", s.handleListProviders)
		r.Get("/providers/{owner}", s.handleGetProvider)
		r.Get("/rankings", s.handleRankings)
		r.Get("/tasks/{owner}", s.handleListTasks)
		r.Get("/tasks/{owner}/{id}", s.handleGetTask)
		r.Get("/balances/{owner}", s.handleGetBalance)
		r.Get("/receipts", s.handleListReceipts)

		// Signed operations
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/vault", s.handleInitVault)
			r.Post("/vault/fund", s.handleFundVault)
			r.Post("/registry", s.handleInitRegistry)

			r.Post("/clients", s.handleEnsureClient)
			r.Post("/clients/{owner}/report", s.handleClientReport)

			r.Post("/endpoints", s.handleCreateEndpoint)
			r.Delete("/endpoints/{owner}", s.handleCloseEndpoint)

			r.Post("/providers", s.handleRegisterProvider)
			r.Put("/providers/{owner}", s.handleUpdateProvider)
			r.Post("/providers/{owner}/report", s.handleProviderReport)
			r.Post("/providers/{owner}/active", s.handleSetProviderActive)
			r.Post("/providers/{owner}/bonus", s.handleClaimBonus)
			r.Delete("/providers/{owner}", s.handleCloseProvider)

			r.Post("/tasks", s.handleCreateTask)
			r.Post("/tasks/{owner}/{id}/assign", s.handleAssignTask)
			r.Post("/tasks/{owner}/{id}/complete", s.handleCompleteTask)
			r.Post("/tasks/{owner}/{id}/preview", s.handlePreviewDataset)
			r.Post("/tasks/{owner}/{id}/download", s.handleDownloadDataset)
			r.Delete("/tasks/{owner}/{id}", s.handleCloseTask)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeProgramError maps a program error onto its HTTP status by kind.
func writeProgramError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusFor(err), map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"type":    kind.String(),
		},
	})
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAuthorization:
		if errors.Is(err, domain.ErrBadSignature) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindState:
		return http.StatusConflict
	case domain.KindResource:
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInsufficientReputation) {
			return http.StatusPaymentRequired
		}
		return http.StatusUnprocessableEntity
	case domain.KindStaleness:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
