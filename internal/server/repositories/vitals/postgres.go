package vitals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/pgerrors"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, vital *models.Vital) (*models.Vital, error) {
	if err := vital.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO vitals (report_id, vital_type, value, unit, measured_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, vital.ReportID, vital.VitalType, vital.Value, vital.Unit, vital.MeasuredAt).
		Scan(&vital.ID, &vital.CreatedAt)
	if err != nil {
		switch {
		case pgerrors.IsForeignKeyViolation(err):
			return nil, common.NewValidationError("reportId", "report does not exist")
		case pgerrors.IsCheckViolation(err):
			return nil, common.NewValidationError("", "vital is incomplete")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return vital, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Vital, error) {
	query := `SELECT id, report_id, vital_type, value, unit, measured_at, created_at FROM vitals WHERE id = $1`

	v := &models.Vital{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&v.ID, &v.ReportID, &v.VitalType, &v.Value, &v.Unit, &v.MeasuredAt, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) ListByReport(ctx context.Context, reportID string) ([]models.Vital, error) {
	query := `
		SELECT id, report_id, vital_type, value, unit, measured_at, created_at
		FROM vitals
		WHERE report_id = $1
		ORDER BY measured_at DESC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Vital, 0)
	for rows.Next() {
		var v models.Vital
		if err := rows.Scan(&v.ID, &v.ReportID, &v.VitalType, &v.Value, &v.Unit, &v.MeasuredAt, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vitals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Trend(ctx context.Context, userID string, filter models.VitalFilter) ([]models.Vital, error) {
	where := []string{"r.user_id = $1"}
	args := []any{userID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.VitalType != "" {
		add("v.vital_type = $%d", filter.VitalType)
	}
	if filter.From != nil {
		add("r.report_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("r.report_date <= $%d", *filter.To)
	}

	query := `
		SELECT v.id, v.report_id, v.vital_type, v.value, v.unit, v.measured_at, v.created_at, r.report_date
		FROM vitals v
		JOIN reports r ON r.id = v.report_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY v.measured_at ASC, v.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Vital, 0)
	for rows.Next() {
		var v models.Vital
		if err := rows.Scan(&v.ID, &v.ReportID, &v.VitalType, &v.Value, &v.Unit, &v.MeasuredAt, &v.CreatedAt, &v.ReportDate); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

// Summary picks the latest value per group by measurement time, breaking
// ties by insertion time, and collects the newest few values of each group.
func (r *PostgresRepository) Summary(ctx context.Context, userID string) ([]models.VitalSummary, error) {
	query := `
		SELECT vital_type, unit, cnt, value, measured_at
		FROM (
			SELECT v.vital_type, v.unit, v.value, v.measured_at,
				COUNT(*) OVER (PARTITION BY v.vital_type, v.unit) AS cnt,
				ROW_NUMBER() OVER (PARTITION BY v.vital_type, v.unit ORDER BY v.measured_at DESC, v.created_at DESC) AS rn
			FROM vitals v
			JOIN reports r ON r.id = v.report_id
			WHERE r.user_id = $1
		) s
		WHERE rn <= $2
		ORDER BY vital_type, unit, rn
	`
	rows, err := r.db.QueryContext(ctx, query, userID, models.RecentValuesLimit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.VitalSummary, 0)
	for rows.Next() {
		var (
			s     models.VitalSummary
			value string
			at    time.Time
		)
		if err := rows.Scan(&s.VitalType, &s.Unit, &s.Count, &value, &at); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if n := len(result); n > 0 && result[n-1].VitalType == s.VitalType && result[n-1].Unit == s.Unit {
			result[n-1].RecentValues = append(result[n-1].RecentValues, value)
			continue
		}
		s.LatestValue = value
		s.LatestMeasurement = at
		s.RecentValues = []string{value}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
