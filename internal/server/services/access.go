// Package services holds the vault's business logic: who may see a report,
// how a report and its vitals come and go, and how reports are shared.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

type Operation int

const (
	OpRead Operation = iota
	OpWrite
	OpDelete
	OpReshare
)

func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	case OpReshare:
		return "reshare"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Capability is what the requester may do with a report they can see.
type Capability string

const (
	CapabilityOwner      Capability = "owner"
	CapabilitySharedRead Capability = "shared-read"
)

// Permits reports whether c allows op.
func (c Capability) Permits(op Operation) bool {
	switch c {
	case CapabilityOwner:
		return true
	case CapabilitySharedRead:
		return op == OpRead
	default:
		return false
	}
}

// Decision is a granted access check together with the report it loaded.
type Decision struct {
	Report     *models.Report
	Capability Capability
}

// AccessControl is the only place that decides whether an identity may act
// on a report. Every denial, including a missing report, is
// common.ErrNotFoundOrForbidden.
type AccessControl struct {
	repomanager repomanager.RepositoryManager
}

func NewAccessControl(m repomanager.RepositoryManager) *AccessControl {
	return &AccessControl{repomanager: m}
}

func (a *AccessControl) Authorize(ctx context.Context, id models.Identity, reportID string, op Operation) (*Decision, error) {
	return a.authorizeWith(ctx, a.repomanager.DB(), id, reportID, op)
}

// authorizeWith runs the check on db so callers inside a transaction see the
// same snapshot as the data they go on to read.
func (a *AccessControl) authorizeWith(ctx context.Context, db dbx.DBTX, id models.Identity, reportID string, op Operation) (*Decision, error) {
	if !validID(reportID) {
		return nil, common.ErrNotFoundOrForbidden
	}

	report, err := a.repomanager.Reports(db).GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNotFoundOrForbidden
		}
		return nil, fmt.Errorf("load report: %w", err)
	}

	if id.UserID != "" && report.UserID == id.UserID {
		return &Decision{Report: report, Capability: CapabilityOwner}, nil
	}

	if !CapabilitySharedRead.Permits(op) {
		return nil, common.ErrNotFoundOrForbidden
	}

	granted, err := a.repomanager.Shares(db).HasAccess(ctx, reportID, id.Email, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("check grant: %w", err)
	}
	if !granted {
		return nil, common.ErrNotFoundOrForbidden
	}
	return &Decision{Report: report, Capability: CapabilitySharedRead}, nil
}

// validID filters out strings the store could never hold as a key.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
