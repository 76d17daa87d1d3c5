package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type VitalRepository struct {
	s *Store
}

func (r *VitalRepository) Create(_ context.Context, vital *models.Vital) (*models.Vital, error) {
	if err := vital.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reports[vital.ReportID]; !ok {
		return nil, common.NewValidationError("reportId", "report does not exist")
	}
	vital.ID = newID()
	vital.CreatedAt = r.s.tick()
	vital.ReportDate = time.Time{}
	r.s.vitals[vital.ID] = *vital
	return vital, nil
}

func (r *VitalRepository) GetByID(_ context.Context, id string) (*models.Vital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.vitals[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &v, nil
}

// newestFirst orders by measurement time then insertion time, both descending.
func newestFirst(a, b models.Vital) bool {
	if !a.MeasuredAt.Equal(b.MeasuredAt) {
		return a.MeasuredAt.After(b.MeasuredAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *VitalRepository) ListByReport(_ context.Context, reportID string) ([]models.Vital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]models.Vital, 0)
	for _, v := range r.s.vitals {
		if v.ReportID == reportID {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return newestFirst(result[i], result[j]) })
	return result, nil
}

func (r *VitalRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.vitals[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.vitals, id)
	return nil
}

func (r *VitalRepository) Trend(_ context.Context, userID string, filter models.VitalFilter) ([]models.Vital, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]models.Vital, 0)
	for _, v := range r.s.vitals {
		rep, ok := r.s.reports[v.ReportID]
		if !ok || rep.UserID != userID {
			continue
		}
		if filter.VitalType != "" && v.VitalType != filter.VitalType {
			continue
		}
		if filter.From != nil && rep.ReportDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rep.ReportDate.After(*filter.To) {
			continue
		}
		v.ReportDate = rep.ReportDate
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return newestFirst(result[j], result[i]) })
	return result, nil
}

func (r *VitalRepository) Summary(_ context.Context, userID string) ([]models.VitalSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	type key struct{ vitalType, unit string }
	groups := make(map[key][]models.Vital)
	for _, v := range r.s.vitals {
		rep, ok := r.s.reports[v.ReportID]
		if !ok || rep.UserID != userID {
			continue
		}
		k := key{v.VitalType, v.Unit}
		groups[k] = append(groups[k], v)
	}

	result := make([]models.VitalSummary, 0, len(groups))
	for k, vs := range groups {
		sort.Slice(vs, func(i, j int) bool { return newestFirst(vs[i], vs[j]) })
		g := models.VitalSummary{
			VitalType:         k.vitalType,
			Unit:              k.unit,
			Count:             len(vs),
			LatestValue:       vs[0].Value,
			LatestMeasurement: vs[0].MeasuredAt,
		}
		for _, v := range vs[:min(len(vs), models.RecentValuesLimit)] {
			g.RecentValues = append(g.RecentValues, v.Value)
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].VitalType != result[j].VitalType {
			return result[i].VitalType < result[j].VitalType
		}
		return result[i].Unit < result[j].Unit
	})
	return result, nil
}
