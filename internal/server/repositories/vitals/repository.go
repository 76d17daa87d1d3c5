// Package vitals persists measurements attached to reports.
package vitals

import (
	"context"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type Repository interface {
	// Create fails with a *common.ValidationError when a required field is
	// blank or the referenced report does not exist.
	Create(ctx context.Context, vital *models.Vital) (*models.Vital, error)
	GetByID(ctx context.Context, id string) (*models.Vital, error)
	// ListByReport orders by measurement time, most recent first.
	ListByReport(ctx context.Context, reportID string) ([]models.Vital, error)
	Delete(ctx context.Context, id string) error
	// Trend returns the owner's vitals with their report date, oldest first.
	Trend(ctx context.Context, userID string, filter models.VitalFilter) ([]models.Vital, error)
	// Summary groups the owner's vitals by (type, unit).
	Summary(ctx context.Context, userID string) ([]models.VitalSummary, error)
}
