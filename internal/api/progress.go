package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/govlens/assessment-console/internal/tracker"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Tracking handlers

func (s *Server) handleTrackAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "assessment id is required")
		return
	}

	t := s.trackers.Track(id)
	respondJSON(w, http.StatusOK, t.Latest())
}

func (s *Server) handleStopTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.trackers.Stop(id); err != nil {
		if errors.Is(err, tracker.ErrNotTracked) {
			respondError(w, http.StatusNotFound, "not_found", "assessment is not being tracked")
			return
		}
		slog.Error("failed to stop tracking", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to stop tracking")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "tracking stopped",
	})
}

// handleViewResults is the explicit results handoff: it fires the completion
// hook without waiting out the grace delay and ends tracking. The hook still
// fires at most once even when the automatic handoff races this call.
func (s *Server) handleViewResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.trackers.ViewResults(id)
	if err != nil {
		switch {
		case errors.Is(err, tracker.ErrNotTracked):
			respondError(w, http.StatusNotFound, "not_found", "assessment is not being tracked")
		case errors.Is(err, tracker.ErrNotCompleted):
			respondError(w, http.StatusConflict, "not_completed", "assessment has not completed yet")
		default:
			slog.Error("failed to hand off results", "error", err, "id", id)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to hand off results")
		}
		return
	}

	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.trackers.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "assessment is not being tracked")
		return
	}

	respondJSON(w, http.StatusOK, t.Latest())
}

// handleProgressStream upgrades to a websocket and relays progress snapshots
// until the assessment reaches a terminal state or the client disconnects.
// Streaming an untracked assessment starts its tracker.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "assessment id required", http.StatusBadRequest)
		return
	}

	t := s.trackers.Track(id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("progress websocket connected", "assessment_id", id)

	sub := t.Subscribe()
	defer t.Unsubscribe(sub)

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	// Read pump: the client sends nothing meaningful, but reading is how we
	// notice the disconnect.
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	// Write pump: latest snapshot first, then live updates
	latest := t.Latest()
	if err := conn.WriteJSON(latest); err != nil {
		slog.Debug("failed to send progress snapshot", "error", err)
		return
	}
	if latest.Terminal() {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "assessment finished"))
		return
	}

	for {
		select {
		case <-done:
			slog.Info("progress websocket disconnected", "assessment_id", id)
			return
		case p, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				slog.Debug("failed to send progress snapshot", "error", err)
				return
			}
			if p.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "assessment finished"))
				slog.Info("progress stream complete", "assessment_id", id, "status", p.Status)
				return
			}
		}
	}
}
