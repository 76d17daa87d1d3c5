// Package shares persists read-only grants on reports. A grant is keyed by
// recipient email; the recipient user id is a resolved cross-reference that
// may be empty.
package shares

import (
	"context"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type Repository interface {
	// Create fails with a *common.ConflictError when a grant for the same
	// report and email (case-insensitive) already exists.
	Create(ctx context.Context, grant *models.ShareGrant) (*models.ShareGrant, error)
	GetByID(ctx context.Context, id string) (*models.ShareGrant, error)
	// FindByReportAndEmail returns common.ErrorNotFound when no grant matches.
	FindByReportAndEmail(ctx context.Context, reportID, email string) (*models.ShareGrant, error)
	// HasAccess reports whether a grant on reportID matches email or userID.
	// An empty userID matches nothing.
	HasAccess(ctx context.Context, reportID, email, userID string) (bool, error)
	Delete(ctx context.Context, id string) error
	// ListReceived returns grants addressed to email or userID, newest first.
	ListReceived(ctx context.Context, email, userID string) ([]models.ReceivedShare, error)
	// ListSent returns grants created by userID, newest first.
	ListSent(ctx context.Context, userID string) ([]models.SentShare, error)
	// ListByReport returns every grant on reportID, newest first.
	ListByReport(ctx context.Context, reportID string) ([]models.SentShare, error)
	// ResolveRecipient fills the recipient user id on email-only grants.
	ResolveRecipient(ctx context.Context, email, userID string) (int64, error)
}
