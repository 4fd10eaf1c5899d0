// Package http exposes the service surface: health, Prometheus metrics,
// decision evaluation, audit reports, and the latest regime per symbol.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/metrics"
	"github.com/quantfall/tradegate/internal/reports/weakness"
)

// Server wires the HTTP handlers to the validator, auditor and detector.
type Server struct {
	addr      string
	validator *gates.Validator
	auditor   *audit.Auditor
	detector  *regime.Detector
	reporter  *weakness.Reporter
	metrics   *metrics.Registry
	srv       *http.Server
}

// NewServer builds the server. The validator, reporter and metrics
// registry may be nil to disable the decision endpoint, the weakness
// endpoint and instrumentation respectively.
func NewServer(addr string, validator *gates.Validator, auditor *audit.Auditor, detector *regime.Detector, reporter *weakness.Reporter, m *metrics.Registry) *Server {
	s := &Server{
		addr:      addr,
		validator: validator,
		auditor:   auditor,
		detector:  detector,
		reporter:  reporter,
		metrics:   m,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/audit/report", s.handleAuditReport).Methods(http.MethodGet)
	r.HandleFunc("/regime/{symbol}", s.handleRegime).Methods(http.MethodGet)
	if validator != nil {
		r.HandleFunc("/decide", s.handleDecide).Methods(http.MethodPost)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.addr).Msg("http server listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report, err := s.auditor.GenerateAuditReport(r.Context(), 0)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AuditFailures.Inc()
		}
		log.Error().Err(err).Msg("audit report generation failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report generation failed"})
		return
	}
	if s.metrics != nil {
		s.metrics.AuditDuration.Observe(time.Since(start).Seconds())
	}

	if s.reporter != nil && r.URL.Query().Get("weaknesses") == "true" {
		symbol := r.URL.Query().Get("symbol")
		writeJSON(w, http.StatusOK, s.reporter.Build(report, s.detector.History(symbol, 100)))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var dc gates.DecisionContext
	if err := json.NewDecoder(r.Body).Decode(&dc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed decision context"})
		return
	}
	if dc.Timestamp.IsZero() {
		dc.Timestamp = time.Now()
	}

	start := time.Now()
	result := s.validator.Validate(r.Context(), dc)
	if s.metrics != nil {
		s.metrics.ObserveDecision(result, time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	current, ok := s.detector.LatestRegime(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no regime for symbol"})
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}
