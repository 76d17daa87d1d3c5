// Package repomanager vends the Record Store: repository constructors bound
// to a DBTX plus the transaction and lifecycle hooks the services need.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/reports"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/shares"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/vitals"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	// DB is the non-transactional handle to pass to the factories.
	DB() dbx.DBTX
	// RunInTx runs fn with a transactional handle; commit on nil error.
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn dbx.TxFunc) error

	Users(db dbx.DBTX) users.Repository
	Reports(db dbx.DBTX) reports.Repository
	Vitals(db dbx.DBTX) vitals.Repository
	Shares(db dbx.DBTX) shares.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository

	Close() error
}

// New picks the PostgreSQL manager for a non-empty DSN and the in-memory
// one otherwise.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	return OpenPostgres(ctx, dsn)
}
