package commitment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/course"
)

type Commitment struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"` // clinician profile; immutable post-creation
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"` // civil date, midnight UTC
	Status      Status    `json:"status"`
	CourseID    string    `json:"course_id,omitempty"`   // weak ref; nulled when the course is deleted
	TemplateID  string    `json:"template_id,omitempty"` // source template; freezes title/description/course
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromTemplate reports whether the commitment was created from (or had
// applied) a provider template, freezing title, description and course.
func (c Commitment) FromTemplate() bool { return c.TemplateID != "" }

// StatusLabel is included in serialized views.
func (c Commitment) StatusLabel() string { return c.Status.Label() }

type (
	QueryFilter struct {
		OwnerID    string
		CourseID   string
		TemplateID string
		Status     *Status
	}

	Repository interface {
		CreateCommitment(ctx context.Context, cmt Commitment, exec ...core.DBExecutor) (Commitment, error)
		GetCommitment(ctx context.Context, id string, exec ...core.DBExecutor) (Commitment, error)
		// QueryCommitments applies AND on the set QueryFilter fields.
		QueryCommitments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Commitment, error)
		UpdateCommitment(ctx context.Context, cmt Commitment, exec ...core.DBExecutor) (Commitment, error)
		DeleteCommitment(ctx context.Context, id string, exec ...core.DBExecutor) error
		// ExpireDue flips every IN_PROGRESS row with deadline < today to
		// EXPIRED in a single statement. Rows not matching are untouched,
		// updated_at included.
		ExpireDue(ctx context.Context, today time.Time, exec ...core.DBExecutor) (int, error)
		// DetachCourse nulls course_id on every commitment referencing the
		// course. Used when a course is deleted; commitments survive.
		DetachCourse(ctx context.Context, courseID string, exec ...core.DBExecutor) error
	}

	// CourseDirectory is what the engine needs from the course manager.
	CourseDirectory interface {
		IsEnrolled(ctx context.Context, courseID, clinicianID string, exec ...core.DBExecutor) (bool, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (course.Template, error)
	}

	// ReminderPruner removes every reminder row (one-shot and recurring)
	// for a commitment. Implemented by the reminder scheduler.
	ReminderPruner interface {
		PruneAll(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error
	}
)

// NewCommitment contains information needed to create a commitment.
type NewCommitment struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Deadline       time.Time `json:"deadline" validate:"required"`
	CourseID       string    `json:"course_id"`
	TemplateID     string    `json:"template_id"`
	ReminderPreset string    `json:"reminder_preset" validate:"omitempty,oneof=NO_REMINDERS DEADLINE_ONLY MONTHLY WEEKLY"`
}

func (nc *NewCommitment) Validate(validate *validator.Validate, clock core.Clock) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	// a templated commitment takes its title and description from the template
	if nc.TemplateID == "" && nc.Title == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field is required"})
	}
	if core.Midnight(nc.Deadline).Before(clock.Today()) {
		return core.NewValidationError(nil, core.FieldError{Field: "deadline", Error: "deadline cannot be in the past"})
	}
	return nil
}

// EditCommitment defines what may be changed on an existing commitment.
// Nil fields are left as-is.
type EditCommitment struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	CourseID    *string    `json:"course_id"`
}
