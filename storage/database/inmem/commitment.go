package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
)

type commitmentRepository struct {
	db *DB
}

var (
	_ commitment.Repository = (*commitmentRepository)(nil) // interface compliance check
)

func NewCommitmentRepository(db *DB) *commitmentRepository {
	return &commitmentRepository{db: db}
}

func (repo *commitmentRepository) CreateCommitment(ctx context.Context, cmt commitment.Commitment, exec ...core.DBExecutor) (commitment.Commitment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cmt.ID = uuid.New().String()
	now := time.Now().UTC()
	cmt.CreatedAt, cmt.UpdatedAt = now, now
	repo.db.commitments[cmt.ID] = &cmt
	return cmt, nil
}

func (repo *commitmentRepository) GetCommitment(ctx context.Context, id string, exec ...core.DBExecutor) (commitment.Commitment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cmt, ok := repo.db.commitments[id]; ok {
		return *cmt, nil
	}
	return commitment.Commitment{}, commitment.ErrNotFound
}

func (repo *commitmentRepository) QueryCommitments(ctx context.Context, filter commitment.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]commitment.Commitment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cmts := make([]commitment.Commitment, 0, len(repo.db.commitments))
	for _, cmt := range repo.db.commitments {
		if filter.OwnerID != "" && cmt.OwnerID != filter.OwnerID {
			continue
		}
		if filter.CourseID != "" && cmt.CourseID != filter.CourseID {
			continue
		}
		if filter.TemplateID != "" && cmt.TemplateID != filter.TemplateID {
			continue
		}
		if filter.Status != nil && cmt.Status != *filter.Status {
			continue
		}
		cmts = append(cmts, *cmt)
	}
	// map iteration order is random; keep results stable for tests
	sort.Slice(cmts, func(i, j int) bool { return cmts[i].CreatedAt.Before(cmts[j].CreatedAt) })
	return cmts, nil
}

func (repo *commitmentRepository) UpdateCommitment(ctx context.Context, cmt commitment.Commitment, exec ...core.DBExecutor) (commitment.Commitment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.commitments[cmt.ID]; !ok {
		return commitment.Commitment{}, commitment.ErrNotFound
	}
	cmt.UpdatedAt = time.Now().UTC()
	repo.db.commitments[cmt.ID] = &cmt
	return cmt, nil
}

func (repo *commitmentRepository) DeleteCommitment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.commitments, id)
	return nil
}

func (repo *commitmentRepository) ExpireDue(ctx context.Context, today time.Time, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	today = core.Midnight(today)
	var cnt int
	for _, cmt := range repo.db.commitments {
		if cmt.Status == commitment.StatusInProgress && cmt.Deadline.Before(today) {
			cmt.Status = commitment.StatusExpired
			cmt.UpdatedAt = time.Now().UTC()
			cnt++
		}
	}
	return cnt, nil
}

func (repo *commitmentRepository) DetachCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, cmt := range repo.db.commitments {
		if cmt.CourseID == courseID {
			cmt.CourseID = ""
			cmt.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}
