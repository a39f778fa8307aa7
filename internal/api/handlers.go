package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/platform"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondPlatformError maps upstream failures onto the console's error
// envelope. Quota exhaustion keeps its own code so the UI can render the
// upgrade path.
func respondPlatformError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, platform.ErrQuotaExceeded) {
		respondError(w, http.StatusPaymentRequired, "quota_exceeded", "assessment limit reached for your plan")
		return
	}

	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		respondError(w, http.StatusBadGateway, "platform_error", apiErr.Message)
		return
	}

	respondError(w, http.StatusBadGateway, "platform_unavailable", fallback)
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// The console is ready when its audit store answers; the platform being
	// down degrades requests individually rather than failing readiness.
	if s.auditRepo != nil {
		if err := s.auditRepo.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", "audit database unavailable")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Client handlers

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.platform.ListClients(r.Context())
	if err != nil {
		slog.Error("failed to list clients", "error", err)
		respondPlatformError(w, err, "failed to list clients")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"total":   len(clients),
	})
}

// Assessment handlers

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "assessment id is required")
		return
	}

	a, err := s.platform.GetAssessmentStatus(r.Context(), id)
	if err != nil {
		slog.Error("failed to get assessment", "error", err, "id", id)
		respondPlatformError(w, err, "failed to get assessment")
		return
	}

	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "assessment id is required")
		return
	}

	findings, err := s.platform.ListFindings(r.Context(), id)
	if err != nil {
		slog.Error("failed to list findings", "error", err, "id", id)
		respondPlatformError(w, err, "failed to list findings")
		return
	}

	counts := make(map[string]int)
	for _, f := range findings {
		counts[strings.ToLower(f.Severity)]++
	}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		filtered := make([]models.Finding, 0, len(findings))
		for _, f := range findings {
			if strings.EqualFold(f.Severity, severity) {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"findings":           findings,
		"total":              len(findings),
		"counts_by_severity": counts,
	})
}

// Audit trail handlers

func (s *Server) handleListRecentSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		respondError(w, http.StatusNotFound, "audit_disabled", "submission audit trail is not configured")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	records, err := s.auditRepo.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list submissions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list submissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": records,
		"total":       len(records),
	})
}

func (s *Server) handleListWizardSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		respondError(w, http.StatusNotFound, "audit_disabled", "submission audit trail is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	records, err := s.auditRepo.ListByWizard(r.Context(), id)
	if err != nil {
		slog.Error("failed to list wizard submissions", "error", err, "wizard", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list submissions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": records,
		"total":       len(records),
	})
}
