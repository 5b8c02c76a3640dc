package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sso/internal/dbx"
	"github.com/dmitrijs2005/sso/internal/server/repositories/recoverytokens"
	"github.com/dmitrijs2005/sso/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RecoveryTokens(db dbx.DBTX) recoverytokens.Repository
}
