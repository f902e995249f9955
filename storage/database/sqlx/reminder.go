package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/reminder"
)

type oneShotRow struct {
	ID           string    `db:"id"`
	CommitmentID string    `db:"commitment_id"`
	Date         time.Time `db:"date"`
	CreatedAt    null.Time `db:"created_at"`
}

type recurringRow struct {
	ID            string    `db:"id"`
	CommitmentID  string    `db:"commitment_id"`
	IntervalDays  int       `db:"interval_days"`
	NextEmailDate time.Time `db:"next_email_date"`
	CreatedAt     null.Time `db:"created_at"`
}

type reminderRepository struct {
	db *sqlx.DB
}

var _ reminder.Repository = (*reminderRepository)(nil) // interface compliance check

func NewReminderRepository(db *sqlx.DB) *reminderRepository {
	return &reminderRepository{db: db}
}

func (repo reminderRepository) unpackOneShot(row oneShotRow) reminder.OneShot {
	return reminder.OneShot{
		ID:           row.ID,
		CommitmentID: row.CommitmentID,
		Date:         core.Midnight(row.Date),
		CreatedAt:    row.CreatedAt.Time,
	}
}

func (repo reminderRepository) unpackRecurring(row recurringRow) reminder.Recurring {
	return reminder.Recurring{
		ID:            row.ID,
		CommitmentID:  row.CommitmentID,
		IntervalDays:  row.IntervalDays,
		NextEmailDate: core.Midnight(row.NextEmailDate),
		CreatedAt:     row.CreatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to reminder.ErrNotFound
func (repo reminderRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return reminder.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo reminderRepository) CreateOneShot(ctx context.Context, r reminder.OneShot, exec ...core.DBExecutor) (reminder.OneShot, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	row := oneShotRow{
		ID:           r.ID,
		CommitmentID: r.CommitmentID,
		Date:         r.Date.UTC(),
		CreatedAt:    null.TimeFrom(r.CreatedAt),
	}
	query := `INSERT INTO reminder (id, commitment_id, date, created_at) VALUES (:id, :commitment_id, :date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return reminder.OneShot{}, errors.Wrap(err, "inserting reminder")
	}
	return r, nil
}

func (repo reminderRepository) GetOneShot(ctx context.Context, id string, exec ...core.DBExecutor) (reminder.OneShot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return reminder.OneShot{}, reminder.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var row oneShotRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM reminder WHERE id = ?`), id); err != nil {
		return reminder.OneShot{}, repo.trapNoRowsErr(err, "finding reminder")
	}
	return repo.unpackOneShot(row), nil
}

func (repo reminderRepository) DeleteOneShot(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM reminder WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting reminder")
	}
	return nil
}

func (repo reminderRepository) DueOneShots(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]reminder.OneShot, error) {
	e := getExec(repo.db, exec)

	var rows []oneShotRow
	query := `SELECT * FROM reminder WHERE date <= ? ORDER BY date`
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), core.Midnight(today)); err != nil {
		return nil, errors.Wrap(err, "querying due reminders")
	}
	reminders := make([]reminder.OneShot, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, repo.unpackOneShot(row))
	}
	return reminders, nil
}

func (repo reminderRepository) CreateRecurring(ctx context.Context, r reminder.Recurring, exec ...core.DBExecutor) (reminder.Recurring, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	row := recurringRow{
		ID:            r.ID,
		CommitmentID:  r.CommitmentID,
		IntervalDays:  r.IntervalDays,
		NextEmailDate: r.NextEmailDate.UTC(),
		CreatedAt:     null.TimeFrom(r.CreatedAt),
	}
	query := `INSERT INTO recurring_reminder (id, commitment_id, interval_days, next_email_date, created_at)
		VALUES (:id, :commitment_id, :interval_days, :next_email_date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return reminder.Recurring{}, errors.Wrap(err, "inserting recurring reminder")
	}
	return r, nil
}

func (repo reminderRepository) GetRecurring(ctx context.Context, id string, exec ...core.DBExecutor) (reminder.Recurring, error) {
	if _, err := uuid.Parse(id); err != nil {
		return reminder.Recurring{}, reminder.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var row recurringRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM recurring_reminder WHERE id = ?`), id); err != nil {
		return reminder.Recurring{}, repo.trapNoRowsErr(err, "finding recurring reminder")
	}
	return repo.unpackRecurring(row), nil
}

func (repo reminderRepository) UpdateRecurring(ctx context.Context, r reminder.Recurring, exec ...core.DBExecutor) (reminder.Recurring, error) {
	row := recurringRow{
		ID:            r.ID,
		IntervalDays:  r.IntervalDays,
		NextEmailDate: r.NextEmailDate.UTC(),
	}
	query := `UPDATE recurring_reminder SET interval_days = :interval_days, next_email_date = :next_email_date WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return reminder.Recurring{}, errors.Wrap(err, "updating recurring reminder")
	}
	return r, nil
}

func (repo reminderRepository) DeleteRecurring(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM recurring_reminder WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting recurring reminder")
	}
	return nil
}

func (repo reminderRepository) DueRecurrings(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]reminder.Recurring, error) {
	e := getExec(repo.db, exec)

	var rows []recurringRow
	query := `SELECT * FROM recurring_reminder WHERE next_email_date <= ? ORDER BY next_email_date`
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), core.Midnight(today)); err != nil {
		return nil, errors.Wrap(err, "querying due recurring reminders")
	}
	reminders := make([]reminder.Recurring, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, repo.unpackRecurring(row))
	}
	return reminders, nil
}

func (repo reminderRepository) ListForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) (reminder.Reminders, error) {
	e := getExec(repo.db, exec)

	var oneShots []oneShotRow
	query := `SELECT * FROM reminder WHERE commitment_id = ? ORDER BY date`
	if err := sqlx.SelectContext(ctx, e, &oneShots, e.Rebind(query), commitmentID); err != nil {
		return reminder.Reminders{}, errors.Wrap(err, "querying reminders")
	}

	var recurrings []recurringRow
	query = `SELECT * FROM recurring_reminder WHERE commitment_id = ? ORDER BY next_email_date`
	if err := sqlx.SelectContext(ctx, e, &recurrings, e.Rebind(query), commitmentID); err != nil {
		return reminder.Reminders{}, errors.Wrap(err, "querying recurring reminders")
	}

	res := reminder.Reminders{
		OneShots:   make([]reminder.OneShot, 0, len(oneShots)),
		Recurrings: make([]reminder.Recurring, 0, len(recurrings)),
	}
	for _, row := range oneShots {
		res.OneShots = append(res.OneShots, repo.unpackOneShot(row))
	}
	for _, row := range recurrings {
		res.Recurrings = append(res.Recurrings, repo.unpackRecurring(row))
	}
	return res, nil
}

func (repo reminderRepository) PruneForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM reminder WHERE commitment_id = ?`), commitmentID); err != nil {
		return errors.Wrap(err, "pruning reminders")
	}
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM recurring_reminder WHERE commitment_id = ?`), commitmentID); err != nil {
		return errors.Wrap(err, "pruning recurring reminders")
	}
	return nil
}
