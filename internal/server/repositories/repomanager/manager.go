// Package repomanager vends the store implementations used by the services
// and owns their transaction boundary.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/assistauth/internal/dbx"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/users"
)

// RepositoryManager binds repositories either to the shared connection
// (DB) or to the handle passed into a WithTx callback. Side effects made
// through the callback handle commit together or not at all.
type RepositoryManager interface {
	DB() dbx.DBTX
	WithTx(ctx context.Context, fn dbx.TxFunc) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context) error
	Close() error
}
