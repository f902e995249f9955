// Package sqlxrepos implements the domain repositories on PostgreSQL.
package sqlxrepos

import (
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ahadi/core"
)

// getExec prefers the transaction handed down by the service layer over
// the repository's own connection pool.
func getExec(db *sqlx.DB, svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return db
}
