// Package reports persists report metadata. Backing files live in the file
// store; a row only holds the opaque reference.
package reports

import (
	"context"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type Repository interface {
	// Create inserts the report and fills ID and UploadDate.
	Create(ctx context.Context, report *models.Report) (*models.Report, error)
	// GetByID returns common.ErrorNotFound when no row exists.
	GetByID(ctx context.Context, id string) (*models.Report, error)
	// ListByOwner returns the owner's reports with VitalCount, newest report date first.
	ListByOwner(ctx context.Context, userID string) ([]models.Report, error)
	Search(ctx context.Context, userID string, filter models.ReportFilter) ([]models.Report, error)
	// ListFiles returns file references of every report, or of one owner's
	// reports when userID is not empty.
	ListFiles(ctx context.Context, userID string) ([]models.ReportFile, error)
	// Delete removes the row; vitals and grants go with it.
	Delete(ctx context.Context, id string) error
}
