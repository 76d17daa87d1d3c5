package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

type addVitalRequest struct {
	ReportID string `json:"reportId"`
	services.VitalInput
}

func (s *Server) handleAddVital(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req addVitalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.deps.Vitals.AddVital(r.Context(), id, req.ReportID, req.VitalInput)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVitalsJSON([]models.Vital{*v})[0])
}

func (s *Server) handleListVitals(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Vitals.ListVitalsForReport(r.Context(), chi.URLParam(r, "reportId"), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVitalsJSON(list))
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	from, err := optionalDate(r, "startDate")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	to, err := optionalDate(r, "endDate")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	list, err := s.deps.Vitals.VitalsTrend(r.Context(), id, models.VitalFilter{
		VitalType: strings.TrimSpace(r.URL.Query().Get("vitalType")),
		From:      from,
		To:        to,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVitalsJSON(list))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Vitals.VitalsSummary(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]summaryJSON, 0, len(list))
	for _, v := range list {
		out = append(out, summaryJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteVital(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.deps.Vitals.DeleteVital(r.Context(), chi.URLParam(r, "id"), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
