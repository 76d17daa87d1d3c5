package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/healthvault/internal/dbx"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/reports"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/shares"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/vitals"
)

// MemoryRepositoryManager serves every factory from one shared memory.Store.
// Each repository call is atomic on its own. A read-only RunInTx hands fn a
// snapshot handle, and factories given that handle read the snapshot, so the
// whole unit of work sees one state. Read-write RunInTx gives no isolation
// across calls.
type MemoryRepositoryManager struct {
	store *memory.Store
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: memory.NewStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepositoryManager) DB() dbx.DBTX { return nil }

// snapshotTx marks a read-only unit of work. It is never used for SQL.
type snapshotTx struct {
	dbx.DBTX
	store *memory.Store
}

func (m *MemoryRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn dbx.TxFunc) error {
	if opts != nil && opts.ReadOnly {
		return fn(ctx, &snapshotTx{store: m.store.Snapshot()})
	}
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) storeFor(db dbx.DBTX) *memory.Store {
	if tx, ok := db.(*snapshotTx); ok {
		return tx.store
	}
	return m.store
}

func (m *MemoryRepositoryManager) Users(db dbx.DBTX) users.Repository { return m.storeFor(db).Users() }

func (m *MemoryRepositoryManager) Reports(db dbx.DBTX) reports.Repository {
	return m.storeFor(db).Reports()
}

func (m *MemoryRepositoryManager) Vitals(db dbx.DBTX) vitals.Repository {
	return m.storeFor(db).Vitals()
}

func (m *MemoryRepositoryManager) Shares(db dbx.DBTX) shares.Repository {
	return m.storeFor(db).Shares()
}

func (m *MemoryRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return m.storeFor(db).RefreshTokens()
}

func (m *MemoryRepositoryManager) Close() error { return nil }
