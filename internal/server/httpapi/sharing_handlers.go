package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type shareRequest struct {
	ReportID string `json:"reportId"`
	Email    string `json:"email"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req shareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.deps.Sharing.ShareReport(r.Context(), id, req.ReportID, req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShareJSON(*g))
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.deps.Sharing.RevokeShare(r.Context(), chi.URLParam(r, "shareId"), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReceived(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Sharing.ListReceivedShares(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]receivedShareJSON, 0, len(list))
	for _, rs := range list {
		out = append(out, receivedShareJSON{
			shareJSON:  toShareJSON(rs.Grant),
			Report:     toReportJSON(rs.Report),
			OwnerName:  rs.OwnerName,
			OwnerEmail: rs.OwnerEmail,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSent(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Sharing.ListSentShares(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSentJSON(list))
}

func (s *Server) handleSharesForReport(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Sharing.ListSharesForReport(r.Context(), chi.URLParam(r, "reportId"), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSentJSON(list))
}
