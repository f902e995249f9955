package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if strings.EqualFold(usr.Username, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = uuid.New().String()
	if usr.CreatedAt.IsZero() {
		now := time.Now().UTC()
		usr.CreatedAt, usr.UpdatedAt = now, now
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "":
			if strings.EqualFold(usr.Username, filter.Username) {
				return *usr, nil
			}
		case filter.Email != "":
			if strings.EqualFold(usr.Email, filter.Email) {
				return *usr, nil
			}
		case filter.UsernameOrEmail != nil:
			for _, val := range filter.UsernameOrEmail {
				if val != "" && (strings.EqualFold(usr.Username, val) || strings.EqualFold(usr.Email, val)) {
					return *usr, nil
				}
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.UpdatedAt = time.Now().UTC()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *userRepository) CreateClinician(ctx context.Context, cl user.Clinician, exec ...core.DBExecutor) (user.Clinician, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cl.ID = uuid.New().String()
	now := time.Now().UTC()
	cl.CreatedAt, cl.UpdatedAt = now, now
	repo.db.clinicians[cl.ID] = &cl
	return cl, nil
}

func (repo *userRepository) GetClinician(ctx context.Context, filter user.ProfileFilter, exec ...core.DBExecutor) (user.Clinician, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if cl, ok := repo.db.clinicians[filter.ID]; ok {
			return *cl, nil
		}
		return user.Clinician{}, user.ErrNotFound
	}
	for _, cl := range repo.db.clinicians {
		if cl.UserID == filter.UserID {
			return *cl, nil
		}
	}
	return user.Clinician{}, user.ErrNotFound
}

func (repo *userRepository) UpdateClinician(ctx context.Context, cl user.Clinician, exec ...core.DBExecutor) (user.Clinician, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.clinicians[cl.ID]; !ok {
		return user.Clinician{}, user.ErrNotFound
	}
	cl.UpdatedAt = time.Now().UTC()
	repo.db.clinicians[cl.ID] = &cl
	return cl, nil
}

func (repo *userRepository) CreateProvider(ctx context.Context, pr user.Provider, exec ...core.DBExecutor) (user.Provider, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	pr.ID = uuid.New().String()
	now := time.Now().UTC()
	pr.CreatedAt, pr.UpdatedAt = now, now
	repo.db.providers[pr.ID] = &pr
	return pr, nil
}

func (repo *userRepository) GetProvider(ctx context.Context, filter user.ProfileFilter, exec ...core.DBExecutor) (user.Provider, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if pr, ok := repo.db.providers[filter.ID]; ok {
			return *pr, nil
		}
		return user.Provider{}, user.ErrNotFound
	}
	for _, pr := range repo.db.providers {
		if pr.UserID == filter.UserID {
			return *pr, nil
		}
	}
	return user.Provider{}, user.ErrNotFound
}

func (repo *userRepository) UpdateProvider(ctx context.Context, pr user.Provider, exec ...core.DBExecutor) (user.Provider, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.providers[pr.ID]; !ok {
		return user.Provider{}, user.ErrNotFound
	}
	pr.UpdatedAt = time.Now().UTC()
	repo.db.providers[pr.ID] = &pr
	return pr, nil
}
