package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

// NewReport is the caller-supplied metadata of a report.
type NewReport struct {
	Title      string
	ReportType string
	ReportDate time.Time
	Notes      string
}

// VitalInput is one measurement to attach to a report. A nil MeasuredAt
// means the report date for batch uploads and now for single additions.
type VitalInput struct {
	VitalType  string     `json:"vitalType"`
	Value      string     `json:"value"`
	Unit       string     `json:"unit"`
	MeasuredAt *time.Time `json:"measuredAt,omitempty"`
}

// Upload is a report file as received from the client.
type Upload struct {
	Data        []byte
	ContentType string
}

type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomePartialFailure Outcome = "partial_failure"
)

// VitalFailure names a batch item that was not stored.
type VitalFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// CreateReportResult is returned even when some vitals failed; the report
// itself is always persisted when err is nil.
type CreateReportResult struct {
	Report   *models.Report
	Vitals   []models.Vital
	Failures []VitalFailure
	Outcome  Outcome
}

// ReportView is a report with its vitals, as seen by one requester.
type ReportView struct {
	Report     *models.Report
	Vitals     []models.Vital
	Capability Capability
}

type ReportFileContent struct {
	Data        []byte
	ContentType string
	FileName    string
}

type ReportService struct {
	repomanager    repomanager.RepositoryManager
	files          filestore.Store
	access         *AccessControl
	logger         logging.Logger
	maxUploadBytes int64
}

func NewReportService(m repomanager.RepositoryManager, files filestore.Store, access *AccessControl, logger logging.Logger, maxUploadBytes int64) *ReportService {
	return &ReportService{
		repomanager:    m,
		files:          files,
		access:         access,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// dateOnly drops the time of day; report dates are calendar dates.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *ReportService) newReportModel(owner models.Identity, meta NewReport) *models.Report {
	r := &models.Report{
		UserID:     owner.UserID,
		Title:      strings.TrimSpace(meta.Title),
		ReportType: strings.TrimSpace(meta.ReportType),
		Notes:      meta.Notes,
	}
	if !meta.ReportDate.IsZero() {
		r.ReportDate = dateOnly(meta.ReportDate)
	}
	return r
}

func (s *ReportService) validateUpload(file Upload) error {
	switch {
	case !filestore.Allowed(file.ContentType):
		return common.NewValidationError("file", "only JPEG, PNG and PDF files are allowed")
	case len(file.Data) == 0:
		return common.NewValidationError("file", "is empty")
	case s.maxUploadBytes > 0 && int64(len(file.Data)) > s.maxUploadBytes:
		return common.NewValidationError("file", fmt.Sprintf("exceeds %d bytes", s.maxUploadBytes))
	}
	return nil
}

// UploadReport validates everything it can before the file is stored, then
// stores the file and creates the report. A stored file whose report row
// could not be created is removed again.
func (s *ReportService) UploadReport(ctx context.Context, owner models.Identity, meta NewReport, file Upload, vitals []VitalInput) (*CreateReportResult, error) {
	if err := s.newReportModel(owner, meta).Validate(); err != nil {
		return nil, err
	}
	if err := s.validateUpload(file); err != nil {
		return nil, err
	}

	ref, err := s.files.Store(ctx, owner.UserID, file.Data, file.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	res, err := s.CreateReport(ctx, owner, meta, ref, file.ContentType, vitals)
	if err != nil {
		if _, rmErr := s.files.Remove(ctx, ref); rmErr != nil {
			s.logger.Error(ctx, "orphaned report file", "file_ref", ref, "error", rmErr)
		}
		return nil, err
	}
	return res, nil
}

// CreateReport persists the report row, then the vitals batch. Vitals are
// best-effort: items failing validation or storage are reported in Failures
// and the rest are kept.
func (s *ReportService) CreateReport(ctx context.Context, owner models.Identity, meta NewReport, fileRef, fileType string, vitals []VitalInput) (*CreateReportResult, error) {
	report := s.newReportModel(owner, meta)
	report.FilePath = fileRef
	report.FileType = fileType
	if err := report.Validate(); err != nil {
		return nil, err
	}

	// Validate the whole batch before anything is written.
	res := &CreateReportResult{Outcome: OutcomeCreated, Vitals: make([]models.Vital, 0, len(vitals))}
	pending := make([]*models.Vital, len(vitals))
	for i, in := range vitals {
		v := vitalFromInput(in, report.ReportDate)
		if err := v.Validate(); err != nil {
			res.Failures = append(res.Failures, VitalFailure{Index: i, Reason: err.Error()})
			continue
		}
		pending[i] = v
	}

	created, err := s.repomanager.Reports(s.repomanager.DB()).Create(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	res.Report = created

	vitalRepo := s.repomanager.Vitals(s.repomanager.DB())
	for i, v := range pending {
		if v == nil {
			continue
		}
		v.ReportID = created.ID
		stored, err := vitalRepo.Create(ctx, v)
		if err != nil {
			reason := "could not be saved"
			var ve *common.ValidationError
			if errors.As(err, &ve) {
				reason = ve.Error()
			} else {
				s.logger.Warn(ctx, "vital insert failed", "report_id", created.ID, "index", i, "error", err)
			}
			res.Failures = append(res.Failures, VitalFailure{Index: i, Reason: reason})
			continue
		}
		res.Vitals = append(res.Vitals, *stored)
	}

	if len(res.Failures) > 0 {
		res.Outcome = OutcomePartialFailure
		sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Index < res.Failures[j].Index })
	}
	created.VitalCount = len(res.Vitals)
	return res, nil
}

func vitalFromInput(in VitalInput, fallback time.Time) *models.Vital {
	v := &models.Vital{
		VitalType: strings.TrimSpace(in.VitalType),
		Value:     strings.TrimSpace(in.Value),
		Unit:      strings.TrimSpace(in.Unit),
	}
	if in.MeasuredAt != nil {
		v.MeasuredAt = in.MeasuredAt.UTC()
	} else {
		v.MeasuredAt = fallback
	}
	return v
}

func (s *ReportService) ListReportsForOwner(ctx context.Context, owner models.Identity) ([]models.Report, error) {
	return s.repomanager.Reports(s.repomanager.DB()).ListByOwner(ctx, owner.UserID)
}

func (s *ReportService) SearchReports(ctx context.Context, owner models.Identity, filter models.ReportFilter) ([]models.Report, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, common.NewValidationError("startDate", "must not be after endDate")
	}
	return s.repomanager.Reports(s.repomanager.DB()).Search(ctx, owner.UserID, filter)
}

// GetReport reads the report and its vitals from one snapshot, so a
// concurrent delete is either not seen at all or seen as not found.
func (s *ReportService) GetReport(ctx context.Context, reportID string, id models.Identity) (*ReportView, error) {
	var view *ReportView
	err := s.repomanager.RunInTx(ctx, dbx.SnapshotReadOnly, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := s.access.authorizeWith(ctx, tx, id, reportID, OpRead)
		if err != nil {
			return err
		}
		vitals, err := s.repomanager.Vitals(tx).ListByReport(ctx, reportID)
		if err != nil {
			return fmt.Errorf("list vitals: %w", err)
		}
		d.Report.VitalCount = len(vitals)
		view = &ReportView{Report: d.Report, Vitals: vitals, Capability: d.Capability}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// OpenReportFile returns the backing file after a read check.
func (s *ReportService) OpenReportFile(ctx context.Context, reportID string, id models.Identity) (*ReportFileContent, error) {
	d, err := s.access.Authorize(ctx, id, reportID, OpRead)
	if err != nil {
		return nil, err
	}

	data, err := s.files.Read(ctx, d.Report.FilePath)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "report file missing", "report_id", reportID, "file_ref", d.Report.FilePath)
			return nil, common.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	name := d.Report.FilePath
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return &ReportFileContent{Data: data, ContentType: d.Report.FileType, FileName: name}, nil
}

// ReportFileURL returns a time-limited direct download URL when the file
// store can issue one, and "" otherwise.
func (s *ReportService) ReportFileURL(ctx context.Context, reportID string, id models.Identity, ttl time.Duration) (string, error) {
	p, ok := s.files.(filestore.Presigner)
	if !ok {
		return "", nil
	}
	d, err := s.access.Authorize(ctx, id, reportID, OpRead)
	if err != nil {
		return "", err
	}
	return p.PresignGet(ctx, d.Report.FilePath, ttl)
}

// DeleteReport removes the backing file first and the row second; the row
// delete cascades to vitals and grants. A row delete failing after the file
// is gone is returned as a *common.FatalError.
func (s *ReportService) DeleteReport(ctx context.Context, reportID string, id models.Identity) error {
	d, err := s.access.Authorize(ctx, id, reportID, OpDelete)
	if err != nil {
		return err
	}
	ref := d.Report.FilePath

	existed, err := s.files.Remove(ctx, ref)
	if err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	if !existed {
		s.logger.Warn(ctx, "report file already absent", "report_id", reportID, "file_ref", ref)
	}

	if err := s.repomanager.Reports(s.repomanager.DB()).Delete(ctx, reportID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Deleted concurrently; the end state is consistent.
			return common.ErrNotFoundOrForbidden
		}
		fatal := &common.FatalError{Op: "delete report", Ref: ref, Err: err}
		s.logger.Error(ctx, "report file removed but row delete failed",
			"report_id", reportID, "file_ref", ref, "error", err)
		return fatal
	}

	s.logger.Info(ctx, "report deleted", "report_id", reportID, "user_id", id.UserID)
	return nil
}
