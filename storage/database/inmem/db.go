// Package inmemdb provides map-backed repositories for tests.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/user"
)

type DB struct {
	mu sync.RWMutex

	users       map[string]*user.User
	clinicians  map[string]*user.Clinician
	providers   map[string]*user.Provider
	commitments map[string]*commitment.Commitment
	oneShots    map[string]*reminder.OneShot
	recurrings  map[string]*reminder.Recurring
	courses     map[string]*course.Course
	templates   map[string]*course.Template
	students    map[string]map[string]bool // course ID -> clinician IDs
	suggested   map[string]map[string]bool // course ID -> template IDs
}

var _ core.DB = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		clinicians:  make(map[string]*user.Clinician),
		providers:   make(map[string]*user.Provider),
		commitments: make(map[string]*commitment.Commitment),
		oneShots:    make(map[string]*reminder.OneShot),
		recurrings:  make(map[string]*reminder.Recurring),
		courses:     make(map[string]*course.Course),
		templates:   make(map[string]*course.Template),
		students:    make(map[string]map[string]bool),
		suggested:   make(map[string]map[string]bool),
	}
}

var errNotSupported = errors.New("inmemdb: raw SQL not supported")

func (db *DB) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotSupported }
func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (db *DB) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotSupported }
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (db *DB) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

// BeginTx returns a no-op transactor; the map repositories apply their
// writes immediately under the DB lock.
func (db *DB) BeginTx(context.Context, *sql.TxOptions) (core.DBTransactor, error) {
	return noopTx{db}, nil
}

type noopTx struct {
	*DB
}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
