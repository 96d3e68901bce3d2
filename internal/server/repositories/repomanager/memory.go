package repomanager

import (
	"context"

	"github.com/dmitrijs2005/assistauth/internal/dbx"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/users"
)

// MemoryRepositoryManager serves the in-process stores. Transactions are
// serialised; waiting for the transaction slot gives up when ctx is done.
// A failing or panicking callback restores the contents the
// stores had when it started. Writes made outside WithTx while a
// transaction rolls back are lost with it.
type MemoryRepositoryManager struct {
	txSlot        chan struct{}
	users         *users.MemoryRepository
	refreshTokens *refreshtokens.MemoryRepository
	resetTokens   *resettokens.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		txSlot:        make(chan struct{}, 1),
		users:         users.NewMemoryRepository(),
		refreshTokens: refreshtokens.NewMemoryRepository(),
		resetTokens:   resettokens.NewMemoryRepository(),
	}
}

// DB is nil: memory repositories ignore the handle they are bound to.
func (m *MemoryRepositoryManager) DB() dbx.DBTX { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.txSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.txSlot }()

	u, rt, pr := m.users.Snapshot(), m.refreshTokens.Snapshot(), m.resetTokens.Snapshot()
	rollback := func() {
		m.users.Restore(u)
		m.refreshTokens.Restore(rt)
		m.resetTokens.Restore(pr)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refreshTokens
}

func (m *MemoryRepositoryManager) ResetTokens(dbx.DBTX) resettokens.Repository {
	return m.resetTokens
}

func (m *MemoryRepositoryManager) Ping(ctx context.Context) error      { return ctx.Err() }
func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Close() error                        { return nil }
