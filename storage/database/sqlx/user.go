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
	"github.com/trezcool/ahadi/core/user"
)

type userRow struct {
	ID           string      `db:"id"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsClinician  null.Bool   `db:"is_clinician"`
	IsProvider   null.Bool   `db:"is_provider"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type clinicianRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	FirstName   null.String `db:"first_name"`
	LastName    null.String `db:"last_name"`
	Institution null.String `db:"institution"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

type providerRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Institution null.String `db:"institution"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) pack(usr user.User) userRow {
	row := userRow{
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsClinician:  null.BoolFrom(usr.IsClinician),
		IsProvider:   null.BoolFrom(usr.IsProvider),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		PasswordHash: null.BytesFrom(usr.PasswordHash),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
	if usr.ID != "" {
		row.ID = usr.ID
	}
	return row
}

func (repo userRepository) unpack(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsClinician:  row.IsClinician.Bool,
		IsProvider:   row.IsProvider.Bool,
		IsActive:     row.IsActive.Ptr(),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastLogin:    row.LastLogin.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)

	excludedIDs := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excludedIDs = append(excludedIDs, u.ID)
	}

	checks := []struct {
		column   string
		value    string
		sentinel error
	}{
		{"username", username, user.ErrUsernameExists},
		{"email", email, user.ErrEmailExists},
	}
	for _, check := range checks {
		query := `SELECT EXISTS (SELECT 1 FROM "user" WHERE LOWER(` + check.column + `) = LOWER(?))`
		args := []interface{}{check.value}
		if len(excludedIDs) > 0 {
			query = `SELECT EXISTS (SELECT 1 FROM "user" WHERE LOWER(` + check.column + `) = LOWER(?) AND id NOT IN (?))`
			var err error
			if query, args, err = sqlx.In(query, check.value, excludedIDs); err != nil {
				return errors.Wrap(err, "checking user uniqueness")
			}
		}

		var exists bool
		if err := sqlx.GetContext(ctx, e, &exists, e.Rebind(query), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if exists {
			return check.sentinel
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	if usr.CreatedAt.IsZero() {
		now := time.Now().UTC()
		usr.CreatedAt, usr.UpdatedAt = now, now
	}
	row := repo.pack(usr)
	query := `INSERT INTO "user" (id, username, email, is_clinician, is_provider, is_active, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :username, :email, :is_clinician, :is_provider, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	e := getExec(repo.db, exec)
	var row userRow

	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		if err := sqlx.GetContext(ctx, e, &row, e.Rebind(`SELECT * FROM "user" WHERE id = ?`), filter.ID); err != nil {
			return user.User{}, repo.trapNoRowsErr(err, "finding user by ID")
		}
		return repo.unpack(row), nil
	}

	var query string
	var args []interface{}

	switch {
	case filter.Username != "":
		query = `SELECT * FROM "user" WHERE LOWER(username) = LOWER(?)`
		args = []interface{}{filter.Username}
	case filter.Email != "":
		query = `SELECT * FROM "user" WHERE LOWER(email) = LOWER(?)`
		args = []interface{}{filter.Email}
	case filter.UsernameOrEmail != nil:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		query = `SELECT * FROM "user" WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)`
		args = []interface{}{uname, email}
	default:
		return user.User{}, user.ErrNotFound
	}

	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(query), args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()
	row := repo.pack(usr)
	query := `UPDATE "user" SET username = :username, email = :email, is_clinician = :is_clinician, is_provider = :is_provider,
		is_active = :is_active, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	e := getExec(repo.db, exec)
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	res, err := e.ExecContext(ctx, e.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

func (repo userRepository) CreateClinician(ctx context.Context, cl user.Clinician, exec ...core.DBExecutor) (user.Clinician, error) {
	cl.ID = uuid.New().String()
	now := time.Now().UTC()
	cl.CreatedAt, cl.UpdatedAt = now, now
	row := clinicianRow{
		ID:          cl.ID,
		UserID:      cl.UserID,
		FirstName:   null.NewString(cl.FirstName, cl.FirstName != ""),
		LastName:    null.NewString(cl.LastName, cl.LastName != ""),
		Institution: null.NewString(cl.Institution, cl.Institution != ""),
		CreatedAt:   null.TimeFrom(cl.CreatedAt),
		UpdatedAt:   null.TimeFrom(cl.UpdatedAt),
	}
	query := `INSERT INTO clinician (id, user_id, first_name, last_name, institution, created_at, updated_at)
		VALUES (:id, :user_id, :first_name, :last_name, :institution, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.Clinician{}, errors.Wrap(err, "inserting clinician")
	}
	return cl, nil
}

func (repo userRepository) GetClinician(ctx context.Context, filter user.ProfileFilter, exec ...core.DBExecutor) (user.Clinician, error) {
	e := getExec(repo.db, exec)

	query := `SELECT * FROM clinician WHERE id = ?`
	arg := filter.ID
	if filter.ID == "" {
		query = `SELECT * FROM clinician WHERE user_id = ?`
		arg = filter.UserID
	}
	if _, err := uuid.Parse(arg); err != nil {
		return user.Clinician{}, user.ErrNotFound
	}

	var row clinicianRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(query), arg); err != nil {
		return user.Clinician{}, repo.trapNoRowsErr(err, "finding clinician")
	}
	return user.Clinician{
		ID:          row.ID,
		UserID:      row.UserID,
		FirstName:   row.FirstName.String,
		LastName:    row.LastName.String,
		Institution: row.Institution.String,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}, nil
}

func (repo userRepository) UpdateClinician(ctx context.Context, cl user.Clinician, exec ...core.DBExecutor) (user.Clinician, error) {
	cl.UpdatedAt = time.Now().UTC()
	row := clinicianRow{
		ID:          cl.ID,
		UserID:      cl.UserID,
		FirstName:   null.NewString(cl.FirstName, cl.FirstName != ""),
		LastName:    null.NewString(cl.LastName, cl.LastName != ""),
		Institution: null.NewString(cl.Institution, cl.Institution != ""),
		UpdatedAt:   null.TimeFrom(cl.UpdatedAt),
	}
	query := `UPDATE clinician SET first_name = :first_name, last_name = :last_name, institution = :institution, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.Clinician{}, errors.Wrap(err, "updating clinician")
	}
	return cl, nil
}

func (repo userRepository) CreateProvider(ctx context.Context, pr user.Provider, exec ...core.DBExecutor) (user.Provider, error) {
	pr.ID = uuid.New().String()
	now := time.Now().UTC()
	pr.CreatedAt, pr.UpdatedAt = now, now
	row := providerRow{
		ID:          pr.ID,
		UserID:      pr.UserID,
		Institution: null.NewString(pr.Institution, pr.Institution != ""),
		CreatedAt:   null.TimeFrom(pr.CreatedAt),
		UpdatedAt:   null.TimeFrom(pr.UpdatedAt),
	}
	query := `INSERT INTO provider (id, user_id, institution, created_at, updated_at)
		VALUES (:id, :user_id, :institution, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.Provider{}, errors.Wrap(err, "inserting provider")
	}
	return pr, nil
}

func (repo userRepository) GetProvider(ctx context.Context, filter user.ProfileFilter, exec ...core.DBExecutor) (user.Provider, error) {
	e := getExec(repo.db, exec)

	query := `SELECT * FROM provider WHERE id = ?`
	arg := filter.ID
	if filter.ID == "" {
		query = `SELECT * FROM provider WHERE user_id = ?`
		arg = filter.UserID
	}
	if _, err := uuid.Parse(arg); err != nil {
		return user.Provider{}, user.ErrNotFound
	}

	var row providerRow
	if err := sqlx.GetContext(ctx, e, &row, e.Rebind(query), arg); err != nil {
		return user.Provider{}, repo.trapNoRowsErr(err, "finding provider")
	}
	return user.Provider{
		ID:          row.ID,
		UserID:      row.UserID,
		Institution: row.Institution.String,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}, nil
}

func (repo userRepository) UpdateProvider(ctx context.Context, pr user.Provider, exec ...core.DBExecutor) (user.Provider, error) {
	pr.UpdatedAt = time.Now().UTC()
	row := providerRow{
		ID:          pr.ID,
		UserID:      pr.UserID,
		Institution: null.NewString(pr.Institution, pr.Institution != ""),
		UpdatedAt:   null.TimeFrom(pr.UpdatedAt),
	}
	query := `UPDATE provider SET institution = :institution, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), query, row); err != nil {
		return user.Provider{}, errors.Wrap(err, "updating provider")
	}
	return pr, nil
}
