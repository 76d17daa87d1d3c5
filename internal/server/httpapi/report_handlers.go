package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// optionalDate parses a query parameter; empty means no bound.
func optionalDate(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, common.NewValidationError(name, "must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}

func (s *Server) handleUploadReport(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	limit := s.deps.MaxUploadBytes
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if limit > 0 && header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", limit))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read file")
		return
	}

	meta := services.NewReport{
		Title:      r.FormValue("title"),
		ReportType: r.FormValue("reportType"),
		Notes:      r.FormValue("notes"),
	}
	if v := strings.TrimSpace(r.FormValue("reportDate")); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reportDate: must be a date (YYYY-MM-DD)")
			return
		}
		meta.ReportDate = d
	}

	var vitals []services.VitalInput
	if v := strings.TrimSpace(r.FormValue("vitals")); v != "" {
		if err := json.Unmarshal([]byte(v), &vitals); err != nil {
			writeError(w, http.StatusBadRequest, "vitals: must be a JSON array")
			return
		}
	}

	res, err := s.deps.Reports.UploadReport(r.Context(), id, meta,
		services.Upload{Data: data, ContentType: header.Header.Get("Content-Type")}, vitals)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	failures := res.Failures
	if failures == nil {
		failures = []services.VitalFailure{}
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		Report:   toReportJSON(*res.Report),
		Vitals:   toVitalsJSON(res.Vitals),
		Failures: failures,
		Outcome:  res.Outcome,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	list, err := s.deps.Reports.ListReportsForOwner(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportsJSON(list))
}

func (s *Server) handleSearchReports(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	list, err := s.deps.Reports.SearchReports(r.Context(), id, models.ReportFilter{
		From:       from,
		To:         to,
		ReportType: strings.TrimSpace(q.Get("reportType")),
		VitalType:  strings.TrimSpace(q.Get("vitalType")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportsJSON(list))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	view, err := s.deps.Reports.GetReport(r.Context(), chi.URLParam(r, "id"), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportViewJSON{
		Report:     toReportJSON(*view.Report),
		Vitals:     toVitalsJSON(view.Vitals),
		Capability: view.Capability,
	})
}

// handleReportFile redirects to a presigned URL when the file store offers
// one and streams the file otherwise.
func (s *Server) handleReportFile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	reportID := chi.URLParam(r, "id")

	url, err := s.deps.Reports.ReportFileURL(r.Context(), reportID, id, fileURLTTL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if url != "" {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	f, err := s.deps.Reports.OpenReportFile(r.Context(), reportID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.deps.Reports.DeleteReport(r.Context(), chi.URLParam(r, "id"), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
