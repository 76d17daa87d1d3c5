package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type ReportRepository struct {
	s *Store
}

func (r *ReportRepository) Create(_ context.Context, report *models.Report) (*models.Report, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[report.UserID]; !ok {
		return nil, common.NewValidationError("userId", "owner does not exist")
	}
	report.ID = newID()
	report.UploadDate = r.s.tick()
	report.VitalCount = 0
	r.s.reports[report.ID] = *report
	return report, nil
}

func (r *ReportRepository) GetByID(_ context.Context, id string) (*models.Report, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rep, ok := r.s.reports[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rep, nil
}

func (r *ReportRepository) ListByOwner(ctx context.Context, userID string) ([]models.Report, error) {
	return r.Search(ctx, userID, models.ReportFilter{})
}

func (r *ReportRepository) Search(_ context.Context, userID string, filter models.ReportFilter) ([]models.Report, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[string]int)
	types := make(map[string]map[string]bool)
	for _, v := range r.s.vitals {
		counts[v.ReportID]++
		if types[v.ReportID] == nil {
			types[v.ReportID] = make(map[string]bool)
		}
		types[v.ReportID][v.VitalType] = true
	}

	result := make([]models.Report, 0)
	for _, rep := range r.s.reports {
		if rep.UserID != userID {
			continue
		}
		if filter.From != nil && rep.ReportDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rep.ReportDate.After(*filter.To) {
			continue
		}
		if filter.ReportType != "" && rep.ReportType != filter.ReportType {
			continue
		}
		if filter.VitalType != "" && !types[rep.ID][filter.VitalType] {
			continue
		}
		rep.VitalCount = counts[rep.ID]
		result = append(result, rep)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReportDate.Equal(result[j].ReportDate) {
			return result[i].ReportDate.After(result[j].ReportDate)
		}
		return result[i].UploadDate.After(result[j].UploadDate)
	})
	return result, nil
}

func (r *ReportRepository) ListFiles(_ context.Context, userID string) ([]models.ReportFile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	reps := make([]models.Report, 0, len(r.s.reports))
	for _, rep := range r.s.reports {
		if userID == "" || rep.UserID == userID {
			reps = append(reps, rep)
		}
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].UploadDate.Before(reps[j].UploadDate) })

	result := make([]models.ReportFile, 0, len(reps))
	for _, rep := range reps {
		result = append(result, models.ReportFile{ReportID: rep.ID, UserID: rep.UserID, FilePath: rep.FilePath})
	}
	return result, nil
}

func (r *ReportRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reports[id]; !ok {
		return common.ErrorNotFound
	}
	r.s.deleteReportLocked(id)
	return nil
}
