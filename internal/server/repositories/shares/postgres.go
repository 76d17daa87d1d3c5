package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

// nullable maps "" to SQL NULL for optional uuid columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const grantColumns = `s.id, s.report_id, s.shared_by, s.recipient_email, s.recipient_user_id, s.access_level, s.shared_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(row scanner, g *models.ShareGrant, extra ...any) error {
	var recipient sql.NullString
	dest := append([]any{&g.ID, &g.ReportID, &g.SharedBy, &g.RecipientEmail, &recipient, &g.AccessLevel, &g.SharedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	g.RecipientUserID = recipient.String
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, grant *models.ShareGrant) (*models.ShareGrant, error) {
	if grant.AccessLevel == "" {
		grant.AccessLevel = common.AccessLevelRead
	}

	query := `
		INSERT INTO shares (report_id, shared_by, recipient_email, recipient_user_id, access_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, shared_at
	`
	err := r.db.QueryRowContext(ctx, query,
		grant.ReportID, grant.SharedBy, grant.RecipientEmail, nullable(grant.RecipientUserID), grant.AccessLevel).
		Scan(&grant.ID, &grant.SharedAt)
	if err != nil {
		switch {
		case pgerrors.IsUniqueViolation(err):
			return nil, common.NewConflictError("report already shared with this email")
		case pgerrors.IsForeignKeyViolation(err):
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return grant, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ShareGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares s WHERE s.id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) FindByReportAndEmail(ctx context.Context, reportID, email string) (*models.ShareGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM shares s WHERE s.report_id = $1 AND lower(s.recipient_email) = lower($2)`
	return r.getOne(ctx, query, reportID, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.ShareGrant, error) {
	g := &models.ShareGrant{}
	if err := scanGrant(r.db.QueryRowContext(ctx, query, args...), g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) HasAccess(ctx context.Context, reportID, email, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM shares
			WHERE report_id = $1
			  AND (lower(recipient_email) = lower($2) OR recipient_user_id = $3)
		)
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, reportID, email, nullable(userID)).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id)
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

func (r *PostgresRepository) ListReceived(ctx context.Context, email, userID string) ([]models.ReceivedShare, error) {
	query := `
		SELECT ` + grantColumns + `,
			r.id, r.user_id, r.title, r.report_type, r.file_path, r.file_type, r.upload_date, r.report_date, r.notes,
			u.full_name, u.email
		FROM shares s
		JOIN reports r ON r.id = s.report_id
		JOIN users u ON u.id = r.user_id
		WHERE lower(s.recipient_email) = lower($1) OR s.recipient_user_id = $2
		ORDER BY s.shared_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, email, nullable(userID))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.ReceivedShare, 0)
	for rows.Next() {
		var rs models.ReceivedShare
		rep := &rs.Report
		if err := scanGrant(rows, &rs.Grant,
			&rep.ID, &rep.UserID, &rep.Title, &rep.ReportType, &rep.FilePath, &rep.FileType,
			&rep.UploadDate, &rep.ReportDate, &rep.Notes, &rs.OwnerName, &rs.OwnerEmail); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ListSent(ctx context.Context, userID string) ([]models.SentShare, error) {
	query := `
		SELECT ` + grantColumns + `, r.title, COALESCE(u.full_name, '')
		FROM shares s
		JOIN reports r ON r.id = s.report_id
		LEFT JOIN users u ON u.id = s.recipient_user_id
		WHERE s.shared_by = $1
		ORDER BY s.shared_at DESC
	`
	return r.listSent(ctx, query, userID)
}

func (r *PostgresRepository) ListByReport(ctx context.Context, reportID string) ([]models.SentShare, error) {
	query := `
		SELECT ` + grantColumns + `, r.title, COALESCE(u.full_name, '')
		FROM shares s
		JOIN reports r ON r.id = s.report_id
		LEFT JOIN users u ON u.id = s.recipient_user_id
		WHERE s.report_id = $1
		ORDER BY s.shared_at DESC
	`
	return r.listSent(ctx, query, reportID)
}

func (r *PostgresRepository) listSent(ctx context.Context, query string, arg string) ([]models.SentShare, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.SentShare, 0)
	for rows.Next() {
		var ss models.SentShare
		if err := scanGrant(rows, &ss.Grant, &ss.ReportTitle, &ss.RecipientName); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) ResolveRecipient(ctx context.Context, email, userID string) (int64, error) {
	query := `
		UPDATE shares SET recipient_user_id = $2
		WHERE lower(recipient_email) = lower($1) AND recipient_user_id IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, email, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
