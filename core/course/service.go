package course

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrTemplateNotFound = errors.New("commitment template not found")
	ErrInvalidJoinCode  = errors.New("invalid join code")
)

type (
	ServiceInterface interface {
		CreateCourse(ctx context.Context, owner user.Provider, nc NewCourse) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		CoursesOwnedBy(ctx context.Context, providerID string) ([]Course, error)
		CoursesEnrolledIn(ctx context.Context, clinicianID string) ([]Course, error)
		EditCourse(ctx context.Context, actorID, id string, ec EditCourse) (Course, error)
		DeleteCourse(ctx context.Context, actorID, id string) error

		Enroll(ctx context.Context, courseID, clinicianID, presentedCode string) error
		EnrollByCode(ctx context.Context, clinicianID, presentedCode string) (Course, error)
		IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error)
		Students(ctx context.Context, actorID, courseID string) ([]user.Clinician, error)

		SetSuggestedTemplates(ctx context.Context, actorID, courseID string, templateIDs []string) error
		SuggestedTemplates(ctx context.Context, courseID string) ([]Template, error)
		IsSuggested(ctx context.Context, courseID, templateID string) (bool, error)

		CreateTemplate(ctx context.Context, owner user.Provider, nt NewTemplate) (Template, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		TemplatesOwnedBy(ctx context.Context, providerID string) ([]Template, error)
		EditTemplate(ctx context.Context, actorID, id string, et EditTemplate) (Template, error)
		DeleteTemplate(ctx context.Context, actorID, id string) error
	}

	service struct {
		db          core.DB
		repo        Repository
		commitments CommitmentDetacher
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, commitments CommitmentDetacher) *service {
	return &service{
		db:          db,
		repo:        repo,
		commitments: commitments,
	}
}

// CreateCourse validates dates and issues the course's join code.
// The code is generated once; it is never overwritten afterwards.
func (svc *service) CreateCourse(ctx context.Context, owner user.Provider, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		OwnerID:     owner.ID,
		Title:       nc.Title,
		Description: nc.Description,
		Identifier:  nc.Identifier,
		StartDate:   nc.StartDate,
		EndDate:     nc.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// retry on the off chance of a collision; the code space is 26^8
	for attempts := 0; attempts < 5; attempts++ {
		code, err := generateJoinCode()
		if err != nil {
			return Course{}, err
		}
		exists, err := svc.repo.JoinCodeExists(ctx, code)
		if err != nil {
			return Course{}, err
		}
		if !exists {
			crs.JoinCode = code
			break
		}
	}
	if crs.JoinCode == "" {
		return Course{}, errors.New("could not issue a unique join code")
	}

	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) CoursesOwnedBy(ctx context.Context, providerID string) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, CourseFilter{OwnerID: providerID}, nil)
}

func (svc *service) CoursesEnrolledIn(ctx context.Context, clinicianID string) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, CourseFilter{StudentID: clinicianID}, nil)
}

func (svc *service) EditCourse(ctx context.Context, actorID, id string, ec EditCourse) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if crs.OwnerID != actorID {
		return Course{}, ErrNotFound
	}

	if ec.Title != nil {
		if t := core.CleanString(*ec.Title); t != "" {
			crs.Title = t
		}
	}
	if ec.Description != nil {
		crs.Description = core.CleanString(*ec.Description)
	}
	if ec.Identifier != nil {
		crs.Identifier = core.CleanString(*ec.Identifier)
	}
	if ec.StartDate != nil {
		crs.StartDate = *ec.StartDate
	}
	if ec.EndDate != nil {
		crs.EndDate = *ec.EndDate
	}
	if err = validateDates(crs.StartDate, crs.EndDate); err != nil {
		return Course{}, err
	}

	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

// DeleteCourse removes the course and its set relations; commitments
// associated with it survive with their course reference nulled.
func (svc *service) DeleteCourse(ctx context.Context, actorID, id string) error {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if crs.OwnerID != actorID {
		return ErrNotFound
	}

	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.commitments.DetachCourse(ctx, crs.ID, tx); err != nil {
			return errors.Wrap(err, "detaching commitments")
		}
		return errors.Wrap(svc.repo.DeleteCourse(ctx, crs.ID, tx), "deleting course")
	})
}

// Enroll adds the clinician to the course's student set. The presented
// code must match exactly; enrolling twice is a no-op.
func (svc *service) Enroll(ctx context.Context, courseID, clinicianID, presentedCode string) error {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if presentedCode != crs.JoinCode {
		return ErrInvalidJoinCode
	}
	return svc.repo.AddStudent(ctx, courseID, clinicianID)
}

// EnrollByCode enrolls the clinician in whichever course the presented
// join code belongs to. Joining a course twice is a no-op.
func (svc *service) EnrollByCode(ctx context.Context, clinicianID, presentedCode string) (Course, error) {
	presentedCode = strings.ToUpper(core.CleanString(presentedCode))
	crs, err := svc.repo.GetCourseByJoinCode(ctx, presentedCode)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Course{}, ErrInvalidJoinCode
		}
		return Course{}, err
	}
	if err = svc.repo.AddStudent(ctx, crs.ID, clinicianID); err != nil {
		return Course{}, err
	}
	return crs, nil
}

func (svc *service) IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error) {
	return svc.repo.IsEnrolled(ctx, courseID, clinicianID, exec...)
}

func (svc *service) Students(ctx context.Context, actorID, courseID string) ([]user.Clinician, error) {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if crs.OwnerID != actorID {
		return nil, ErrNotFound
	}
	return svc.repo.ListStudents(ctx, courseID)
}

// SetSuggestedTemplates replaces the course's suggested set. Every
// template must belong to the course's owner.
func (svc *service) SetSuggestedTemplates(ctx context.Context, actorID, courseID string, templateIDs []string) error {
	crs, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if crs.OwnerID != actorID {
		return ErrNotFound
	}

	for _, tid := range templateIDs {
		tpl, err := svc.repo.GetTemplate(ctx, tid)
		if err != nil {
			return err
		}
		if tpl.OwnerID != crs.OwnerID {
			return core.NewValidationError(nil, core.FieldError{
				Field: "templates",
				Error: "suggested templates must belong to the course owner",
			})
		}
	}

	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.repo.ReplaceSuggestedTemplates(ctx, courseID, templateIDs, tx)
	})
}

func (svc *service) SuggestedTemplates(ctx context.Context, courseID string) ([]Template, error) {
	return svc.repo.ListSuggestedTemplates(ctx, courseID)
}

func (svc *service) IsSuggested(ctx context.Context, courseID, templateID string) (bool, error) {
	return svc.repo.IsSuggested(ctx, courseID, templateID)
}

func (svc *service) CreateTemplate(ctx context.Context, owner user.Provider, nt NewTemplate) (Template, error) {
	now := time.Now().UTC()
	tpl := Template{
		OwnerID:     owner.ID,
		Title:       nt.Title,
		Description: nt.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateTemplate(ctx, tpl)
}

func (svc *service) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error) {
	return svc.repo.GetTemplate(ctx, id, exec...)
}

func (svc *service) TemplatesOwnedBy(ctx context.Context, providerID string) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, providerID, nil)
}

func (svc *service) EditTemplate(ctx context.Context, actorID, id string, et EditTemplate) (Template, error) {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if tpl.OwnerID != actorID {
		return Template{}, ErrTemplateNotFound
	}

	if et.Title != nil {
		if t := core.CleanString(*et.Title); t != "" {
			tpl.Title = t
		}
	}
	if et.Description != nil {
		tpl.Description = core.CleanString(*et.Description)
	}
	tpl.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTemplate(ctx, tpl)
}

// DeleteTemplate cascades nothing through set relations; suggested links
// are removed, commitments keep their frozen copy of the text.
func (svc *service) DeleteTemplate(ctx context.Context, actorID, id string) error {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if tpl.OwnerID != actorID {
		return ErrTemplateNotFound
	}
	return svc.repo.DeleteTemplate(ctx, id)
}
