package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/wizard"
)

// Wizard session handlers — one endpoint per form interaction, each
// returning the full post-interaction state so the UI never has to merge.

func (s *Server) handleOpenWizard(w http.ResponseWriter, r *http.Request) {
	var req models.OpenWizardRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}

	wz := s.wizards.Open(req.Client)
	respondJSON(w, http.StatusCreated, wz.Snapshot())
}

func (s *Server) handleGetWizard(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, wz.Snapshot())
}

func (s *Server) handleCloseWizard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.wizards.Close(id); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "wizard session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "wizard closed",
	})
}

func (s *Server) handleSelectClient(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	var req models.SelectClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Client.ID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "client id is required")
		return
	}

	state, err := wz.SelectClient(req.Client)
	s.respondWizard(w, state, err)
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	var req models.SetNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := wz.SetName(req.Name)
	s.respondWizard(w, state, err)
}

func (s *Server) handleToggleType(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	typeID, err := strconv.Atoi(chi.URLParam(r, "typeId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "type id must be an integer")
		return
	}

	state, err := wz.ToggleType(typeID)
	s.respondWizard(w, state, err)
}

func (s *Server) handleSelectEnvironment(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	var req models.SelectEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := wz.SelectEnvironment(req.EnvironmentID)
	s.respondWizard(w, state, err)
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	var req models.SetPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := wz.SetUsePreferences(req.UseClientPreferences)
	s.respondWizard(w, state, err)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	state, err := wz.Advance()
	s.respondWizard(w, state, err)
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	state, err := wz.Retreat()
	s.respondWizard(w, state, err)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	state := wz.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary":           state.SummaryText(s.catalogLoader),
		"estimated_minutes": state.EstimatedMinutes(s.catalogLoader),
		"selected_count":    len(state.SelectedTypeIDs),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	wz, ok := s.lookupWizard(w, r)
	if !ok {
		return
	}

	created, state, err := wz.Submit(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, wizard.ErrSubmitInProgress):
			respondError(w, http.StatusConflict, "submit_in_progress", "a submit is already in flight for this wizard")
		case errors.Is(err, wizard.ErrSubmitFailed):
			respondError(w, http.StatusBadGateway, "submit_failed", state.SubmissionError)
		case errors.Is(err, wizard.ErrWizardClosed):
			respondError(w, http.StatusGone, "wizard_closed", "wizard session was closed")
		default:
			s.respondWizard(w, state, err)
		}
		return
	}

	s.wizards.Remove(wz.ID())
	respondJSON(w, http.StatusCreated, models.SubmitResponse{Created: created})
}

// lookupWizard resolves the session from the URL or writes a 404
func (s *Server) lookupWizard(w http.ResponseWriter, r *http.Request) (*wizard.Wizard, bool) {
	id := chi.URLParam(r, "id")
	wz, err := s.wizards.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "wizard session not found")
		return nil, false
	}
	return wz, true
}

// respondWizard writes the post-interaction state, mapping wizard errors
// onto HTTP statuses
func (s *Server) respondWizard(w http.ResponseWriter, state wizard.State, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, state)
		return
	}

	var vErr *wizard.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", vErr.Message)
	case errors.Is(err, wizard.ErrUnknownEnvironment):
		respondError(w, http.StatusUnprocessableEntity, "validation_error", "environment does not belong to the selected client")
	case errors.Is(err, wizard.ErrWizardClosed):
		respondError(w, http.StatusGone, "wizard_closed", "wizard session was closed")
	default:
		slog.Error("wizard interaction failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "wizard interaction failed")
	}
}
