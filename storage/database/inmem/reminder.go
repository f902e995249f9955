package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/reminder"
)

type reminderRepository struct {
	db *DB
}

var _ reminder.Repository = (*reminderRepository)(nil) // interface compliance check

func NewReminderRepository(db *DB) *reminderRepository {
	return &reminderRepository{db: db}
}

func (repo *reminderRepository) CreateOneShot(ctx context.Context, r reminder.OneShot, exec ...core.DBExecutor) (reminder.OneShot, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	repo.db.oneShots[r.ID] = &r
	return r, nil
}

func (repo *reminderRepository) GetOneShot(ctx context.Context, id string, exec ...core.DBExecutor) (reminder.OneShot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.oneShots[id]; ok {
		return *r, nil
	}
	return reminder.OneShot{}, reminder.ErrNotFound
}

func (repo *reminderRepository) DeleteOneShot(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.oneShots, id)
	return nil
}

func (repo *reminderRepository) DueOneShots(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]reminder.OneShot, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	today = core.Midnight(today)
	reminders := make([]reminder.OneShot, 0)
	for _, r := range repo.db.oneShots {
		if !r.Date.After(today) {
			reminders = append(reminders, *r)
		}
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].Date.Before(reminders[j].Date) })
	return reminders, nil
}

func (repo *reminderRepository) CreateRecurring(ctx context.Context, r reminder.Recurring, exec ...core.DBExecutor) (reminder.Recurring, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.ID = uuid.New().String()
	r.CreatedAt = time.Now().UTC()
	repo.db.recurrings[r.ID] = &r
	return r, nil
}

func (repo *reminderRepository) GetRecurring(ctx context.Context, id string, exec ...core.DBExecutor) (reminder.Recurring, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.recurrings[id]; ok {
		return *r, nil
	}
	return reminder.Recurring{}, reminder.ErrNotFound
}

func (repo *reminderRepository) UpdateRecurring(ctx context.Context, r reminder.Recurring, exec ...core.DBExecutor) (reminder.Recurring, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.recurrings[r.ID]
	if !ok {
		return reminder.Recurring{}, reminder.ErrNotFound
	}
	r.CommitmentID = orig.CommitmentID
	r.CreatedAt = orig.CreatedAt
	repo.db.recurrings[r.ID] = &r
	return r, nil
}

func (repo *reminderRepository) DeleteRecurring(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.recurrings, id)
	return nil
}

func (repo *reminderRepository) DueRecurrings(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]reminder.Recurring, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	today = core.Midnight(today)
	reminders := make([]reminder.Recurring, 0)
	for _, r := range repo.db.recurrings {
		if !r.NextEmailDate.After(today) {
			reminders = append(reminders, *r)
		}
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].NextEmailDate.Before(reminders[j].NextEmailDate) })
	return reminders, nil
}

func (repo *reminderRepository) ListForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) (reminder.Reminders, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	res := reminder.Reminders{
		OneShots:   make([]reminder.OneShot, 0),
		Recurrings: make([]reminder.Recurring, 0),
	}
	for _, r := range repo.db.oneShots {
		if r.CommitmentID == commitmentID {
			res.OneShots = append(res.OneShots, *r)
		}
	}
	for _, r := range repo.db.recurrings {
		if r.CommitmentID == commitmentID {
			res.Recurrings = append(res.Recurrings, *r)
		}
	}
	sort.Slice(res.OneShots, func(i, j int) bool { return res.OneShots[i].Date.Before(res.OneShots[j].Date) })
	sort.Slice(res.Recurrings, func(i, j int) bool {
		return res.Recurrings[i].NextEmailDate.Before(res.Recurrings[j].NextEmailDate)
	})
	return res, nil
}

func (repo *reminderRepository) PruneForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, r := range repo.db.oneShots {
		if r.CommitmentID == commitmentID {
			delete(repo.db.oneShots, id)
		}
	}
	for id, r := range repo.db.recurrings {
		if r.CommitmentID == commitmentID {
			delete(repo.db.recurrings, id)
		}
	}
	return nil
}
