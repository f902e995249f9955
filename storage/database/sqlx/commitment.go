package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
)

type commitmentRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Title       null.String `db:"title"`
	Description null.String `db:"description"`
	Deadline    time.Time   `db:"deadline"`
	Status      int         `db:"status"`
	CourseID    null.String `db:"course_id"`
	TemplateID  null.String `db:"template_id"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

type commitmentRepository struct {
	db *sqlx.DB
}

var (
	_ commitment.Repository = (*commitmentRepository)(nil) // interface compliance check
)

func NewCommitmentRepository(db *sqlx.DB) *commitmentRepository {
	return &commitmentRepository{db: db}
}

func (repo commitmentRepository) pack(cmt commitment.Commitment) commitmentRow {
	return commitmentRow{
		ID:          cmt.ID,
		OwnerID:     cmt.OwnerID,
		Title:       null.NewString(cmt.Title, cmt.Title != ""),
		Description: null.NewString(cmt.Description, cmt.Description != ""),
		Deadline:    cmt.Deadline.UTC(),
		Status:      int(cmt.Status),
		CourseID:    null.NewString(cmt.CourseID, cmt.CourseID != ""),
		TemplateID:  null.NewString(cmt.TemplateID, cmt.TemplateID != ""),
		CreatedAt:   null.NewTime(cmt.CreatedAt.UTC(), !cmt.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(cmt.UpdatedAt.UTC(), !cmt.UpdatedAt.IsZero()),
	}
}

func (repo commitmentRepository) unpack(row commitmentRow) commitment.Commitment {
	return commitment.Commitment{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title.String,
		Description: row.Description.String,
		Deadline:    core.Midnight(row.Deadline),
		Status:      commitment.Status(row.Status),
		CourseID:    row.CourseID.String,
		TemplateID:  row.TemplateID.String,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

func (repo commitmentRepository) unpackSlice(rows []commitmentRow) []commitment.Commitment {
	cmts := make([]commitment.Commitment, 0, len(rows))
	for _, row := range rows {
		cmts = append(cmts, repo.unpack(row))
	}
	return cmts
}

// trapNoRowsErr maps psql "no rows" err to commitment.ErrNotFound
func (repo commitmentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return commitment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo commitmentRepository) CreateCommitment(ctx context.Context, cmt commitment.Commitment, exec ...core.DBExecutor) (commitment.Commitment, error) {
	cmt.ID = uuid.New().String()
	now := time.Now().UTC()
	cmt.CreatedAt, cmt.UpdatedAt = now, now
	row := repo.pack(cmt)
	query := `INSERT INTO commitment (id, owner_id, title, description, deadline, status, course_id, template_id, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :description, :deadline, :status, :course_id, :template_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return commitment.Commitment{}, errors.Wrap(err, "inserting commitment")
	}
	return cmt, nil
}

func (repo commitmentRepository) GetCommitment(ctx context.Context, id string, exec ...core.DBExecutor) (commitment.Commitment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return commitment.Commitment{}, commitment.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var row commitmentRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM commitment WHERE id = ?`), id); err != nil {
		return commitment.Commitment{}, repo.trapNoRowsErr(err, "finding commitment")
	}
	return repo.unpack(row), nil
}

func (repo commitmentRepository) QueryCommitments(ctx context.Context, filter commitment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]commitment.Commitment, error) {
	e := getExec(repo.db, exec)

	var where []string
	var args []interface{}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.CourseID != "" {
		where = append(where, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.TemplateID != "" {
		where = append(where, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, int(*filter.Status))
	}

	query := `SELECT * FROM commitment`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []commitmentRow
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying commitments")
	}
	return repo.unpackSlice(rows), nil
}

func (repo commitmentRepository) UpdateCommitment(ctx context.Context, cmt commitment.Commitment, exec ...core.DBExecutor) (commitment.Commitment, error) {
	cmt.UpdatedAt = time.Now().UTC()
	row := repo.pack(cmt)
	query := `UPDATE commitment SET title = :title, description = :description, deadline = :deadline, status = :status,
		course_id = :course_id, template_id = :template_id, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return commitment.Commitment{}, errors.Wrap(err, "updating commitment")
	}
	return cmt, nil
}

func (repo commitmentRepository) DeleteCommitment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM commitment WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting commitment")
	}
	return nil
}

func (repo commitmentRepository) ExpireDue(ctx context.Context, today time.Time, exec ...core.DBExecutor) (int, error) {
	e := getExec(repo.db, exec)
	query := `UPDATE commitment SET status = ?, updated_at = ? WHERE status = ? AND deadline < ?`
	res, err := e.ExecContext(ctx, e.Rebind(query),
		int(commitment.StatusExpired), time.Now().UTC(), int(commitment.StatusInProgress), core.Midnight(today))
	if err != nil {
		return 0, errors.Wrap(err, "expiring commitments")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "expiring commitments")
	}
	return int(cnt), nil
}

func (repo commitmentRepository) DetachCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	query := `UPDATE commitment SET course_id = NULL, updated_at = ? WHERE course_id = ?`
	if _, err := e.ExecContext(ctx, e.Rebind(query), time.Now().UTC(), courseID); err != nil {
		return errors.Wrap(err, "detaching course from commitments")
	}
	return nil
}
