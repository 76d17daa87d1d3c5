package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

type VitalService struct {
	repomanager repomanager.RepositoryManager
	access      *AccessControl
	now         func() time.Time
}

func NewVitalService(m repomanager.RepositoryManager, access *AccessControl) *VitalService {
	return &VitalService{repomanager: m, access: access, now: time.Now}
}

// AddVital attaches one measurement to a report the requester owns.
func (s *VitalService) AddVital(ctx context.Context, id models.Identity, reportID string, in VitalInput) (*models.Vital, error) {
	v := vitalFromInput(in, s.now().UTC())
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.access.Authorize(ctx, id, reportID, OpWrite); err != nil {
		return nil, err
	}
	v.ReportID = reportID
	created, err := s.repomanager.Vitals(s.repomanager.DB()).Create(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("create vital: %w", err)
	}
	return created, nil
}

// ListVitalsForReport returns the report's vitals, most recent first.
func (s *VitalService) ListVitalsForReport(ctx context.Context, reportID string, id models.Identity) ([]models.Vital, error) {
	var result []models.Vital
	err := s.repomanager.RunInTx(ctx, dbx.SnapshotReadOnly, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.access.authorizeWith(ctx, tx, id, reportID, OpRead); err != nil {
			return err
		}
		var err error
		result, err = s.repomanager.Vitals(tx).ListByReport(ctx, reportID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteVital removes a vital from a report the requester owns.
func (s *VitalService) DeleteVital(ctx context.Context, vitalID string, id models.Identity) error {
	if !validID(vitalID) {
		return common.ErrNotFoundOrForbidden
	}
	repo := s.repomanager.Vitals(s.repomanager.DB())

	v, err := repo.GetByID(ctx, vitalID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("load vital: %w", err)
	}
	if _, err := s.access.Authorize(ctx, id, v.ReportID, OpDelete); err != nil {
		return err
	}
	if err := repo.Delete(ctx, vitalID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("delete vital: %w", err)
	}
	return nil
}

// VitalsTrend lists the owner's vitals oldest first, optionally narrowed by
// type and report date range.
func (s *VitalService) VitalsTrend(ctx context.Context, owner models.Identity, filter models.VitalFilter) ([]models.Vital, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, common.NewValidationError("startDate", "must not be after endDate")
	}
	return s.repomanager.Vitals(s.repomanager.DB()).Trend(ctx, owner.UserID, filter)
}

// VitalsSummary groups the owner's vitals by (type, unit).
func (s *VitalService) VitalsSummary(ctx context.Context, owner models.Identity) ([]models.VitalSummary, error) {
	return s.repomanager.Vitals(s.repomanager.DB()).Summary(ctx, owner.UserID)
}
