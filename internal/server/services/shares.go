package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

// IdentityResolver maps an email to a registered user id.
type IdentityResolver interface {
	ResolveEmail(ctx context.Context, email string) (userID string, found bool, err error)
}

type SharingService struct {
	repomanager repomanager.RepositoryManager
	access      *AccessControl
	identities  IdentityResolver
	logger      logging.Logger
}

func NewSharingService(m repomanager.RepositoryManager, access *AccessControl, identities IdentityResolver, logger logging.Logger) *SharingService {
	return &SharingService{repomanager: m, access: access, identities: identities, logger: logger}
}

// validEmail accepts a bare address only, not "Name <addr>".
func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// ShareReport grants recipientEmail read access to a report the requester
// owns. The store's uniqueness on (report, email) decides races; the losing
// call gets a *common.ConflictError.
func (s *SharingService) ShareReport(ctx context.Context, owner models.Identity, reportID, recipientEmail string) (*models.ShareGrant, error) {
	email := common.NormalizeEmail(recipientEmail)
	if !validEmail(email) {
		return nil, common.NewValidationError("recipientEmail", "is not a valid email address")
	}
	if email == common.NormalizeEmail(owner.Email) {
		return nil, common.NewValidationError("recipientEmail", "cannot share a report with yourself")
	}

	if _, err := s.access.Authorize(ctx, owner, reportID, OpReshare); err != nil {
		return nil, err
	}

	repo := s.repomanager.Shares(s.repomanager.DB())
	if _, err := repo.FindByReportAndEmail(ctx, reportID, email); err == nil {
		return nil, common.NewConflictError("report already shared with this email")
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("check existing grant: %w", err)
	}

	grant := &models.ShareGrant{
		ReportID:       reportID,
		SharedBy:       owner.UserID,
		RecipientEmail: email,
		AccessLevel:    common.AccessLevelRead,
	}
	if userID, found, err := s.identities.ResolveEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	} else if found {
		grant.RecipientUserID = userID
	}

	created, err := repo.Create(ctx, grant)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// report deleted between the check and the insert
			return nil, common.ErrNotFoundOrForbidden
		}
		return nil, err
	}

	s.logger.Info(ctx, "report shared", "report_id", reportID, "share_id", created.ID, "user_id", owner.UserID)
	return created, nil
}

// RevokeShare deletes a grant created by the requester. Grants that do not
// exist or belong to someone else are common.ErrNotFoundOrForbidden.
func (s *SharingService) RevokeShare(ctx context.Context, shareID string, id models.Identity) error {
	if !validID(shareID) {
		return common.ErrNotFoundOrForbidden
	}
	repo := s.repomanager.Shares(s.repomanager.DB())

	grant, err := repo.GetByID(ctx, shareID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("load grant: %w", err)
	}
	if grant.SharedBy != id.UserID {
		return common.ErrNotFoundOrForbidden
	}
	if _, err := s.access.Authorize(ctx, id, grant.ReportID, OpReshare); err != nil {
		return err
	}

	if err := repo.Delete(ctx, shareID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotFoundOrForbidden
		}
		return fmt.Errorf("delete grant: %w", err)
	}

	s.logger.Info(ctx, "share revoked", "share_id", shareID, "report_id", grant.ReportID, "user_id", id.UserID)
	return nil
}

// ListReceivedShares returns grants addressed to the requester by email or
// resolved user id.
func (s *SharingService) ListReceivedShares(ctx context.Context, id models.Identity) ([]models.ReceivedShare, error) {
	return s.repomanager.Shares(s.repomanager.DB()).ListReceived(ctx, common.NormalizeEmail(id.Email), id.UserID)
}

func (s *SharingService) ListSentShares(ctx context.Context, owner models.Identity) ([]models.SentShare, error) {
	return s.repomanager.Shares(s.repomanager.DB()).ListSent(ctx, owner.UserID)
}

// ListSharesForReport is owner-only.
func (s *SharingService) ListSharesForReport(ctx context.Context, reportID string, owner models.Identity) ([]models.SentShare, error) {
	if _, err := s.access.Authorize(ctx, owner, reportID, OpReshare); err != nil {
		return nil, err
	}
	return s.repomanager.Shares(s.repomanager.DB()).ListByReport(ctx, reportID)
}
