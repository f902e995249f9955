package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/user"
)

type Course struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"` // provider profile
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Identifier  string    `json:"identifier"` // optional short code
	StartDate   time.Time `json:"start_date"` // optional; zero = unset
	EndDate     time.Time `json:"end_date"`   // optional; zero = unset
	JoinCode    string    `json:"join_code"`  // issued once, immutable after
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Template is a provider-authored reusable commitment text. Attached to a
// course it becomes a "suggested commitment" offered to enrolled students.
type Template struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"` // provider profile
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type (
	CourseFilter struct {
		OwnerID   string
		StudentID string // clinician profile enrolled in the course
	}

	Repository interface {
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		JoinCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		GetCourseByJoinCode(ctx context.Context, code string, exec ...core.DBExecutor) (Course, error)

		// course <-> student set relation; link removal only, never cascading
		AddStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error
		RemoveStudent(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) error
		IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error)
		ListStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]user.Clinician, error)

		// course <-> suggested template set relation
		ReplaceSuggestedTemplates(ctx context.Context, courseID string, templateIDs []string, exec ...core.DBExecutor) error
		ListSuggestedTemplates(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Template, error)
		IsSuggested(ctx context.Context, courseID, templateID string, exec ...core.DBExecutor) (bool, error)

		CreateTemplate(ctx context.Context, tpl Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, ownerID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Template, error)
		UpdateTemplate(ctx context.Context, tpl Template, exec ...core.DBExecutor) (Template, error)
		DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// CommitmentDetacher nulls the associated-course reference on
	// commitments when a course is deleted. Implemented by the commitment
	// repository; the commitments themselves are never deleted here.
	CommitmentDetacher interface {
		DetachCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) error
	}
)

// NewCourse contains information needed to create a course.
type NewCourse struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Identifier  string    `json:"identifier"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Identifier = core.CleanString(nc.Identifier)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return validateDates(nc.StartDate, nc.EndDate)
}

// EditCourse defines what may be changed on an existing course.
// The join code is not among them.
type EditCourse struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Identifier  *string    `json:"identifier"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// NewTemplate contains information needed to create a commitment template.
type NewTemplate struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	return validate.Struct(nt)
}

// EditTemplate defines what may be changed on an existing template.
type EditTemplate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func validateDates(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end date cannot precede start date"})
	}
	return nil
}
