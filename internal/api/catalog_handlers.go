package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Catalog handlers — browsing of assessment domains and their types

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains := s.catalogLoader.ListDomains()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"domains": domains,
		"total":   len(domains),
	})
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	domainID := chi.URLParam(r, "domainId")
	domain := s.catalogLoader.GetDomain(domainID)
	if domain == nil {
		respondError(w, http.StatusNotFound, "not_found", "domain not found")
		return
	}
	respondJSON(w, http.StatusOK, domain)
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	domainID := chi.URLParam(r, "domainId")
	if s.catalogLoader.GetDomain(domainID) == nil {
		respondError(w, http.StatusNotFound, "not_found", "domain not found")
		return
	}
	types := s.catalogLoader.ListTypes(domainID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"types": types,
		"total": len(types),
	})
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.Atoi(chi.URLParam(r, "typeId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "type id must be an integer")
		return
	}

	t := s.catalogLoader.GetType(typeID)
	if t == nil {
		respondError(w, http.StatusNotFound, "not_found", "assessment type not found")
		return
	}
	respondJSON(w, http.StatusOK, t)
}
