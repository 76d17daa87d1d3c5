package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

const reportColumns = `r.id, r.user_id, r.title, r.report_type, r.file_path, r.file_type, r.upload_date, r.report_date, r.notes`

func (r *PostgresRepository) Create(ctx context.Context, report *models.Report) (*models.Report, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO reports (user_id, title, report_type, file_path, file_type, report_date, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, upload_date
	`
	err := r.db.QueryRowContext(ctx, query,
		report.UserID, report.Title, report.ReportType, report.FilePath, report.FileType, report.ReportDate, report.Notes).
		Scan(&report.ID, &report.UploadDate)
	if err != nil {
		switch {
		case pgerrors.IsCheckViolation(err):
			return nil, common.NewValidationError("", "report metadata is incomplete")
		case pgerrors.IsForeignKeyViolation(err):
			return nil, common.NewValidationError("userId", "owner does not exist")
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return report, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports r WHERE r.id = $1`

	report := &models.Report{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&report.ID, &report.UserID, &report.Title, &report.ReportType, &report.FilePath,
		&report.FileType, &report.UploadDate, &report.ReportDate, &report.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return report, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]models.Report, error) {
	query := `
		SELECT ` + reportColumns + `,
			(SELECT COUNT(*) FROM vitals v WHERE v.report_id = r.id) AS vital_count
		FROM reports r
		WHERE r.user_id = $1
		ORDER BY r.report_date DESC, r.upload_date DESC
	`
	return r.queryWithCount(ctx, query, userID)
}

// Search applies every non-empty filter conjunctively. VitalType matches
// reports carrying at least one vital of that type.
func (r *PostgresRepository) Search(ctx context.Context, userID string, filter models.ReportFilter) ([]models.Report, error) {
	where := []string{"r.user_id = $1"}
	args := []any{userID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.From != nil {
		add("r.report_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("r.report_date <= $%d", *filter.To)
	}
	if filter.ReportType != "" {
		add("r.report_type = $%d", filter.ReportType)
	}
	if filter.VitalType != "" {
		add("EXISTS (SELECT 1 FROM vitals fv WHERE fv.report_id = r.id AND fv.vital_type = $%d)", filter.VitalType)
	}

	query := `
		SELECT ` + reportColumns + `,
			(SELECT COUNT(*) FROM vitals v WHERE v.report_id = r.id) AS vital_count
		FROM reports r
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.report_date DESC, r.upload_date DESC
	`
	return r.queryWithCount(ctx, query, args...)
}

func (r *PostgresRepository) queryWithCount(ctx context.Context, query string, args ...any) ([]models.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Report, 0)
	for rows.Next() {
		var rep models.Report
		if err := rows.Scan(
			&rep.ID, &rep.UserID, &rep.Title, &rep.ReportType, &rep.FilePath,
			&rep.FileType, &rep.UploadDate, &rep.ReportDate, &rep.Notes, &rep.VitalCount); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ListFiles(ctx context.Context, userID string) ([]models.ReportFile, error) {
	query := `SELECT id, user_id, file_path FROM reports`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY upload_date`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.ReportFile, 0)
	for rows.Next() {
		var f models.ReportFile
		if err := rows.Scan(&f.ReportID, &f.UserID, &f.FilePath); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
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
