package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

// ReconcileResult lists reports whose backing file is gone. Invalid holds
// rows whose reference no store could hold; they are never deleted.
type ReconcileResult struct {
	Checked int                 `json:"checked"`
	Missing []models.ReportFile `json:"missing"`
	Invalid []models.ReportFile `json:"invalid"`
	Removed int                 `json:"removed"`
}

// Reconciler finds reports left behind by a file delete whose row delete
// failed.
type Reconciler struct {
	repomanager repomanager.RepositoryManager
	files       filestore.Store
	logger      logging.Logger
}

func NewReconciler(m repomanager.RepositoryManager, files filestore.Store, logger logging.Logger) *Reconciler {
	return &Reconciler{repomanager: m, files: files, logger: logger}
}

// Run checks every report's file. With fix set, rows whose file is missing
// are deleted.
func (r *Reconciler) Run(ctx context.Context, fix bool) (*ReconcileResult, error) {
	repo := r.repomanager.Reports(r.repomanager.DB())

	all, err := repo.ListFiles(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	res := &ReconcileResult{Checked: len(all), Missing: make([]models.ReportFile, 0), Invalid: make([]models.ReportFile, 0)}
	for _, f := range all {
		ok, err := r.files.Exists(ctx, f.FilePath)
		if errors.Is(err, filestore.ErrInvalidRef) {
			res.Invalid = append(res.Invalid, f)
			r.logger.Warn(ctx, "report with invalid file reference", "report_id", f.ReportID, "file_ref", f.FilePath)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", f.FilePath, err)
		}
		if ok {
			continue
		}
		res.Missing = append(res.Missing, f)
		r.logger.Warn(ctx, "report without file", "report_id", f.ReportID, "file_ref", f.FilePath)

		if !fix {
			continue
		}
		if err := repo.Delete(ctx, f.ReportID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("delete report %s: %w", f.ReportID, err)
		}
		res.Removed++
	}
	return res, nil
}
