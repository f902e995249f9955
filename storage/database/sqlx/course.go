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
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/user"
)

type courseRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Title       null.String `db:"title"`
	Description null.String `db:"description"`
	Identifier  null.String `db:"identifier"`
	StartDate   null.Time   `db:"start_date"`
	EndDate     null.Time   `db:"end_date"`
	JoinCode    string      `db:"join_code"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

type templateRow struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Title       null.String `db:"title"`
	Description null.String `db:"description"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) pack(crs course.Course) courseRow {
	return courseRow{
		ID:          crs.ID,
		OwnerID:     crs.OwnerID,
		Title:       null.NewString(crs.Title, crs.Title != ""),
		Description: null.NewString(crs.Description, crs.Description != ""),
		Identifier:  null.NewString(crs.Identifier, crs.Identifier != ""),
		StartDate:   null.NewTime(crs.StartDate.UTC(), !crs.StartDate.IsZero()),
		EndDate:     null.NewTime(crs.EndDate.UTC(), !crs.EndDate.IsZero()),
		JoinCode:    crs.JoinCode,
		CreatedAt:   null.NewTime(crs.CreatedAt.UTC(), !crs.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(crs.UpdatedAt.UTC(), !crs.UpdatedAt.IsZero()),
	}
}

func (repo courseRepository) unpack(row courseRow) course.Course {
	crs := course.Course{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title.String,
		Description: row.Description.String,
		Identifier:  row.Identifier.String,
		JoinCode:    row.JoinCode,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
	if row.StartDate.Valid {
		crs.StartDate = core.Midnight(row.StartDate.Time)
	}
	if row.EndDate.Valid {
		crs.EndDate = core.Midnight(row.EndDate.Time)
	}
	return crs
}

func (repo courseRepository) unpackTemplate(row templateRow) course.Template {
	return course.Template{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title.String,
		Description: row.Description.String,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to the given sentinel
func (repo courseRepository) trapNoRowsErr(err, sentinel error, msg string) error {
	if err == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.ID = uuid.New().String()
	now := time.Now().UTC()
	crs.CreatedAt, crs.UpdatedAt = now, now
	row := repo.pack(crs)
	query := `INSERT INTO course (id, owner_id, title, description, identifier, start_date, end_date, join_code, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :description, :identifier, :start_date, :end_date, :join_code, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var row courseRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM course WHERE id = ?`), id); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	e := getExec(repo.db, exec)

	query := `SELECT c.* FROM course c`
	var where []string
	var args []interface{}
	if filter.StudentID != "" {
		query += ` JOIN course_student cs ON cs.course_id = c.id`
		where = append(where, "cs.clinician_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.OwnerID != "" {
		where = append(where, "c.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
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

	var rows []courseRow
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.unpack(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	crs.UpdatedAt = time.Now().UTC()
	row := repo.pack(crs)
	// the join code is issued once and never rewritten
	query := `UPDATE course SET title = :title, description = :description, identifier = :identifier,
		start_date = :start_date, end_date = :end_date, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return crs, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM course WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return nil
}

func (repo courseRepository) JoinCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM course WHERE join_code = ?)`
	if err := sqlx.GetContext(ctx, e, &exists, e.Rebind(query), code); err != nil {
		return false, errors.Wrap(err, "checking join code")
	}
	return exists, nil
}

func (repo courseRepository) GetCourseByJoinCode(ctx context.Context, code string, exec ...core.DBExecutor) (course.Course, error) {
	e := getExec(repo.db, exec)

	var row courseRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM course WHERE join_code = ?`), code); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, course.ErrNotFound, "finding course by join code")
	}
	return repo.unpack(row), nil
}

func (repo courseRepository) AddStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	query := `INSERT INTO course_student (course_id, clinician_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	if _, err := e.ExecContext(ctx, e.Rebind(query), courseID, clinicianID); err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return nil
}

func (repo courseRepository) RemoveStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	query := `DELETE FROM course_student WHERE course_id = ? AND clinician_id = ?`
	if _, err := e.ExecContext(ctx, e.Rebind(query), courseID, clinicianID); err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	return nil
}

func (repo courseRepository) IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM course_student WHERE course_id = ? AND clinician_id = ?)`
	if err := sqlx.GetContext(ctx, e, &exists, e.Rebind(query), courseID, clinicianID); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return exists, nil
}

func (repo courseRepository) ListStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]user.Clinician, error) {
	e := getExec(repo.db, exec)

	var rows []clinicianRow
	query := `SELECT cl.* FROM clinician cl JOIN course_student cs ON cs.clinician_id = cl.id
		WHERE cs.course_id = ? ORDER BY cl.last_name, cl.first_name`
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), courseID); err != nil {
		return nil, errors.Wrap(err, "querying course students")
	}
	students := make([]user.Clinician, 0, len(rows))
	for _, row := range rows {
		students = append(students, user.Clinician{
			ID:          row.ID,
			UserID:      row.UserID,
			FirstName:   row.FirstName.String,
			LastName:    row.LastName.String,
			Institution: row.Institution.String,
			CreatedAt:   row.CreatedAt.Time,
			UpdatedAt:   row.UpdatedAt.Time,
		})
	}
	return students, nil
}

func (repo courseRepository) ReplaceSuggestedTemplates(ctx context.Context, courseID string, templateIDs []string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)

	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM course_suggested_template WHERE course_id = ?`), courseID); err != nil {
		return errors.Wrap(err, "clearing suggested templates")
	}
	for _, tplID := range templateIDs {
		query := `INSERT INTO course_suggested_template (course_id, template_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
		if _, err := e.ExecContext(ctx, e.Rebind(query), courseID, tplID); err != nil {
			return errors.Wrap(err, "adding suggested template")
		}
	}
	return nil
}

func (repo courseRepository) ListSuggestedTemplates(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Template, error) {
	e := getExec(repo.db, exec)

	var rows []templateRow
	query := `SELECT t.* FROM commitment_template t JOIN course_suggested_template st ON st.template_id = t.id
		WHERE st.course_id = ? ORDER BY t.title`
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), courseID); err != nil {
		return nil, errors.Wrap(err, "querying suggested templates")
	}
	templates := make([]course.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, repo.unpackTemplate(row))
	}
	return templates, nil
}

func (repo courseRepository) IsSuggested(ctx context.Context, courseID, templateID string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM course_suggested_template WHERE course_id = ? AND template_id = ?)`
	if err := sqlx.GetContext(ctx, e, &exists, e.Rebind(query), courseID, templateID); err != nil {
		return false, errors.Wrap(err, "checking suggested template")
	}
	return exists, nil
}

func (repo courseRepository) CreateTemplate(ctx context.Context, tpl course.Template, exec ...core.DBExecutor) (course.Template, error) {
	tpl.ID = uuid.New().String()
	now := time.Now().UTC()
	tpl.CreatedAt, tpl.UpdatedAt = now, now
	row := templateRow{
		ID:          tpl.ID,
		OwnerID:     tpl.OwnerID,
		Title:       null.NewString(tpl.Title, tpl.Title != ""),
		Description: null.NewString(tpl.Description, tpl.Description != ""),
		CreatedAt:   null.TimeFrom(tpl.CreatedAt),
		UpdatedAt:   null.TimeFrom(tpl.UpdatedAt),
	}
	query := `INSERT INTO commitment_template (id, owner_id, title, description, created_at, updated_at)
		VALUES (:id, :owner_id, :title, :description, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return course.Template{}, errors.Wrap(err, "inserting template")
	}
	return tpl, nil
}

func (repo courseRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (course.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Template{}, course.ErrTemplateNotFound
	}
	e := getExec(repo.db, exec)

	var row templateRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM commitment_template WHERE id = ?`), id); err != nil {
		return course.Template{}, repo.trapNoRowsErr(err, course.ErrTemplateNotFound, "finding template")
	}
	return repo.unpackTemplate(row), nil
}

func (repo courseRepository) QueryTemplates(ctx context.Context, ownerID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Template, error) {
	e := getExec(repo.db, exec)

	query := `SELECT * FROM commitment_template WHERE owner_id = ?`
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	}

	var rows []templateRow
	if err := sqlx.SelectContext(ctx, e, &rows, e.Rebind(query), ownerID); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	templates := make([]course.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, repo.unpackTemplate(row))
	}
	return templates, nil
}

func (repo courseRepository) UpdateTemplate(ctx context.Context, tpl course.Template, exec ...core.DBExecutor) (course.Template, error) {
	tpl.UpdatedAt = time.Now().UTC()
	row := templateRow{
		ID:          tpl.ID,
		Title:       null.NewString(tpl.Title, tpl.Title != ""),
		Description: null.NewString(tpl.Description, tpl.Description != ""),
		UpdatedAt:   null.TimeFrom(tpl.UpdatedAt),
	}
	query := `UPDATE commitment_template SET title = :title, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return course.Template{}, errors.Wrap(err, "updating template")
	}
	return tpl, nil
}

func (repo courseRepository) DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	if _, err := e.ExecContext(ctx, e.Rebind(`DELETE FROM commitment_template WHERE id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return nil
}
