package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/user"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	crs.ID = uuid.New().String()
	now := time.Now().UTC()
	crs.CreatedAt, crs.UpdatedAt = now, now
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		if filter.OwnerID != "" && crs.OwnerID != filter.OwnerID {
			continue
		}
		if filter.StudentID != "" && !repo.db.students[crs.ID][filter.StudentID] {
			continue
		}
		courses = append(courses, *crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	crs.JoinCode = orig.JoinCode // issued once, immutable after
	crs.UpdatedAt = time.Now().UTC()
	repo.db.courses[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.courses, id)
	delete(repo.db.students, id)
	delete(repo.db.suggested, id)
	return nil
}

func (repo *courseRepository) JoinCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, crs := range repo.db.courses {
		if crs.JoinCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) GetCourseByJoinCode(ctx context.Context, code string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, crs := range repo.db.courses {
		if crs.JoinCode == code {
			return *crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) AddStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.students[courseID] == nil {
		repo.db.students[courseID] = make(map[string]bool)
	}
	repo.db.students[courseID][clinicianID] = true
	return nil
}

func (repo *courseRepository) RemoveStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.students[courseID], clinicianID)
	return nil
}

func (repo *courseRepository) IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.db.students[courseID][clinicianID], nil
}

func (repo *courseRepository) ListStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]user.Clinician, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]user.Clinician, 0, len(repo.db.students[courseID]))
	for clinicianID := range repo.db.students[courseID] {
		if cl, ok := repo.db.clinicians[clinicianID]; ok {
			students = append(students, *cl)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
	return students, nil
}

func (repo *courseRepository) ReplaceSuggestedTemplates(ctx context.Context, courseID string, templateIDs []string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	set := make(map[string]bool, len(templateIDs))
	for _, tplID := range templateIDs {
		set[tplID] = true
	}
	repo.db.suggested[courseID] = set
	return nil
}

func (repo *courseRepository) ListSuggestedTemplates(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	templates := make([]course.Template, 0, len(repo.db.suggested[courseID]))
	for tplID := range repo.db.suggested[courseID] {
		if tpl, ok := repo.db.templates[tplID]; ok {
			templates = append(templates, *tpl)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Title < templates[j].Title })
	return templates, nil
}

func (repo *courseRepository) IsSuggested(ctx context.Context, courseID, templateID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.db.suggested[courseID][templateID], nil
}

func (repo *courseRepository) CreateTemplate(ctx context.Context, tpl course.Template, exec ...core.DBExecutor) (course.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	tpl.ID = uuid.New().String()
	now := time.Now().UTC()
	tpl.CreatedAt, tpl.UpdatedAt = now, now
	repo.db.templates[tpl.ID] = &tpl
	return tpl, nil
}

func (repo *courseRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (course.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if tpl, ok := repo.db.templates[id]; ok {
		return *tpl, nil
	}
	return course.Template{}, course.ErrTemplateNotFound
}

func (repo *courseRepository) QueryTemplates(ctx context.Context, ownerID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	templates := make([]course.Template, 0)
	for _, tpl := range repo.db.templates {
		if tpl.OwnerID == ownerID {
			templates = append(templates, *tpl)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].CreatedAt.Before(templates[j].CreatedAt) })
	return templates, nil
}

func (repo *courseRepository) UpdateTemplate(ctx context.Context, tpl course.Template, exec ...core.DBExecutor) (course.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.templates[tpl.ID]
	if !ok {
		return course.Template{}, course.ErrTemplateNotFound
	}
	tpl.OwnerID = orig.OwnerID
	tpl.CreatedAt = orig.CreatedAt
	tpl.UpdatedAt = time.Now().UTC()
	repo.db.templates[tpl.ID] = &tpl
	return tpl, nil
}

func (repo *courseRepository) DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.templates, id)
	for _, set := range repo.db.suggested {
		delete(set, id)
	}
	return nil
}
