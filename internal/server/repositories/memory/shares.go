package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type ShareRepository struct {
	s *Store
}

func (r *ShareRepository) Create(_ context.Context, grant *models.ShareGrant) (*models.ShareGrant, error) {
	if grant.AccessLevel == "" {
		grant.AccessLevel = common.AccessLevelRead
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reports[grant.ReportID]; !ok {
		return nil, common.ErrorNotFound
	}
	if _, ok := r.s.users[grant.SharedBy]; !ok {
		return nil, common.ErrorNotFound
	}
	if grant.RecipientUserID != "" {
		if _, ok := r.s.users[grant.RecipientUserID]; !ok {
			return nil, common.ErrorNotFound
		}
	}
	for _, g := range r.s.shares {
		if g.ReportID == grant.ReportID && sameEmail(g.RecipientEmail, grant.RecipientEmail) {
			return nil, common.NewConflictError("report already shared with this email")
		}
	}

	grant.ID = newID()
	grant.SharedAt = r.s.tick()
	r.s.shares[grant.ID] = *grant
	return grant, nil
}

func (r *ShareRepository) GetByID(_ context.Context, id string) (*models.ShareGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	g, ok := r.s.shares[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r *ShareRepository) FindByReportAndEmail(_ context.Context, reportID, email string) (*models.ShareGrant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, g := range r.s.shares {
		if g.ReportID == reportID && sameEmail(g.RecipientEmail, email) {
			return &g, nil
		}
	}
	return nil, common.ErrorNotFound
}

func matchesRecipient(g models.ShareGrant, email, userID string) bool {
	return sameEmail(g.RecipientEmail, email) || (userID != "" && g.RecipientUserID == userID)
}

func (r *ShareRepository) HasAccess(_ context.Context, reportID, email, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, g := range r.s.shares {
		if g.ReportID == reportID && matchesRecipient(g, email, userID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *ShareRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.shares[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.shares, id)
	return nil
}

func newestGrantFirst(a, b models.ShareGrant) bool { return a.SharedAt.After(b.SharedAt) }

func (r *ShareRepository) ListReceived(_ context.Context, email, userID string) ([]models.ReceivedShare, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]models.ReceivedShare, 0)
	for _, g := range r.s.shares {
		if !matchesRecipient(g, email, userID) {
			continue
		}
		rep, ok := r.s.reports[g.ReportID]
		if !ok {
			continue
		}
		owner := r.s.users[rep.UserID]
		result = append(result, models.ReceivedShare{Grant: g, Report: rep, OwnerName: owner.FullName, OwnerEmail: owner.Email})
	}
	sort.Slice(result, func(i, j int) bool { return newestGrantFirst(result[i].Grant, result[j].Grant) })
	return result, nil
}

func (r *ShareRepository) ListSent(_ context.Context, userID string) ([]models.SentShare, error) {
	return r.listSent(func(g models.ShareGrant) bool { return g.SharedBy == userID })
}

func (r *ShareRepository) ListByReport(_ context.Context, reportID string) ([]models.SentShare, error) {
	return r.listSent(func(g models.ShareGrant) bool { return g.ReportID == reportID })
}

func (r *ShareRepository) listSent(match func(models.ShareGrant) bool) ([]models.SentShare, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]models.SentShare, 0)
	for _, g := range r.s.shares {
		if !match(g) {
			continue
		}
		ss := models.SentShare{Grant: g, ReportTitle: r.s.reports[g.ReportID].Title}
		if g.RecipientUserID != "" {
			ss.RecipientName = r.s.users[g.RecipientUserID].FullName
		}
		result = append(result, ss)
	}
	sort.Slice(result, func(i, j int) bool { return newestGrantFirst(result[i].Grant, result[j].Grant) })
	return result, nil
}

func (r *ShareRepository) ResolveRecipient(_ context.Context, email, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, g := range r.s.shares {
		if g.RecipientUserID == "" && sameEmail(g.RecipientEmail, email) {
			g.RecipientUserID = userID
			r.s.shares[id] = g
			n++
		}
	}
	return n, nil
}
