package commitment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("commitment not found")
)

type (
	ServiceInterface interface {
		Create(ctx context.Context, owner user.Clinician, nc NewCommitment) (Commitment, error)
		Get(ctx context.Context, id string) (Commitment, error)
		OwnedBy(ctx context.Context, ownerID string) ([]Commitment, error)
		Edit(ctx context.Context, actorID, id string, ec EditCommitment) (Commitment, error)
		ApplyTemplate(ctx context.Context, actorID, id, templateID string) (Commitment, error)
		MarkComplete(ctx context.Context, actorID, id string) (Commitment, error)
		MarkDiscontinued(ctx context.Context, actorID, id string) (Commitment, error)
		Reopen(ctx context.Context, actorID, id string) (Commitment, error)
		Delete(ctx context.Context, actorID, id string) error
		ExpireDue(ctx context.Context) (int, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		courses   CourseDirectory
		reminders ReminderPruner
		clock     core.Clock
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, courses CourseDirectory, reminders ReminderPruner, clock core.Clock) *service {
	return &service{
		db:        db,
		repo:      repo,
		courses:   courses,
		reminders: reminders,
		clock:     clock,
	}
}

// Create validates the deadline and course enrollment, copies template
// text when a source template is given, and stores the commitment as
// IN_PROGRESS.
func (svc *service) Create(ctx context.Context, owner user.Clinician, nc NewCommitment) (Commitment, error) {
	now := time.Now().UTC()
	cmt := Commitment{
		OwnerID:     owner.ID,
		Title:       nc.Title,
		Description: nc.Description,
		Deadline:    core.Midnight(nc.Deadline),
		Status:      StatusInProgress,
		CourseID:    nc.CourseID,
		TemplateID:  nc.TemplateID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if cmt.Deadline.Before(svc.clock.Today()) {
		return Commitment{}, core.NewValidationError(nil, core.FieldError{Field: "deadline", Error: "deadline cannot be in the past"})
	}

	if cmt.CourseID != "" {
		enrolled, err := svc.courses.IsEnrolled(ctx, cmt.CourseID, owner.ID)
		if err != nil {
			return Commitment{}, errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return Commitment{}, core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "you are not enrolled in this course"})
		}
	}

	if cmt.TemplateID != "" {
		tpl, err := svc.courses.GetTemplate(ctx, cmt.TemplateID)
		if err != nil {
			return Commitment{}, errors.Wrap(err, "finding source template")
		}
		cmt.Title = tpl.Title
		cmt.Description = tpl.Description
	}

	return svc.repo.CreateCommitment(ctx, cmt)
}

// Get does not check ownership; commitment views are shareable via link.
func (svc *service) Get(ctx context.Context, id string) (Commitment, error) {
	return svc.repo.GetCommitment(ctx, id)
}

func (svc *service) OwnedBy(ctx context.Context, ownerID string) ([]Commitment, error) {
	return svc.repo.QueryCommitments(ctx, QueryFilter{OwnerID: ownerID},
		[]core.DBOrdering{{Field: "deadline", Ascending: true}})
}

// Edit permits only the owner to edit; to anyone else the commitment
// does not exist. When the commitment was sourced
// from a template, title, description and associated course are frozen:
// a submitted value differing from the current one fails validation.
// Changing the deadline never flips the status by itself; the expiration
// sweep remains the sole EXPIRED mechanism.
func (svc *service) Edit(ctx context.Context, actorID, id string, ec EditCommitment) (Commitment, error) {
	cmt, err := svc.repo.GetCommitment(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if cmt.OwnerID != actorID {
		return Commitment{}, ErrNotFound
	}

	if cmt.FromTemplate() {
		if ec.Title != nil && core.CleanString(*ec.Title) != cmt.Title {
			return Commitment{}, frozenFieldErr("title")
		}
		if ec.Description != nil && core.CleanString(*ec.Description) != cmt.Description {
			return Commitment{}, frozenFieldErr("description")
		}
		if ec.CourseID != nil && *ec.CourseID != cmt.CourseID {
			return Commitment{}, frozenFieldErr("course_id")
		}
	} else {
		if ec.Title != nil {
			if t := core.CleanString(*ec.Title); t != "" {
				cmt.Title = t
			}
		}
		if ec.Description != nil {
			cmt.Description = core.CleanString(*ec.Description)
		}
		if ec.CourseID != nil && *ec.CourseID != cmt.CourseID {
			if *ec.CourseID != "" {
				enrolled, err := svc.courses.IsEnrolled(ctx, *ec.CourseID, cmt.OwnerID)
				if err != nil {
					return Commitment{}, errors.Wrap(err, "checking enrollment")
				}
				if !enrolled {
					return Commitment{}, core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "you are not enrolled in this course"})
				}
			}
			cmt.CourseID = *ec.CourseID
		}
	}

	if ec.Deadline != nil {
		deadline := core.Midnight(*ec.Deadline)
		if deadline.Before(svc.clock.Today()) {
			return Commitment{}, core.NewValidationError(nil, core.FieldError{Field: "deadline", Error: "deadline cannot be in the past"})
		}
		cmt.Deadline = deadline
	}

	cmt.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCommitment(ctx, cmt)
}

// ApplyTemplate overwrites title and description with the template's and
// records the link. This is the only sanctioned mutation of the text once
// a template is applied.
func (svc *service) ApplyTemplate(ctx context.Context, actorID, id, templateID string) (Commitment, error) {
	cmt, err := svc.repo.GetCommitment(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if cmt.OwnerID != actorID {
		return Commitment{}, ErrNotFound
	}

	tpl, err := svc.courses.GetTemplate(ctx, templateID)
	if err != nil {
		return Commitment{}, errors.Wrap(err, "finding template")
	}

	cmt.Title = tpl.Title
	cmt.Description = tpl.Description
	cmt.TemplateID = tpl.ID
	cmt.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCommitment(ctx, cmt)
}

func (svc *service) MarkComplete(ctx context.Context, actorID, id string) (Commitment, error) {
	return svc.close(ctx, actorID, id, StatusComplete)
}

func (svc *service) MarkDiscontinued(ctx context.Context, actorID, id string) (Commitment, error) {
	return svc.close(ctx, actorID, id, StatusDiscontinued)
}

// close sets the closed status and prunes every reminder for the
// commitment, under one transaction.
func (svc *service) close(ctx context.Context, actorID, id string, status Status) (Commitment, error) {
	var cmt Commitment
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		if cmt, err = svc.repo.GetCommitment(ctx, id, tx); err != nil {
			return err
		}
		if cmt.OwnerID != actorID {
			return ErrNotFound
		}

		cmt.Status = status
		cmt.UpdatedAt = time.Now().UTC()
		if cmt, err = svc.repo.UpdateCommitment(ctx, cmt, tx); err != nil {
			return errors.Wrap(err, "updating commitment")
		}
		return errors.Wrap(svc.reminders.PruneAll(ctx, cmt.ID, tx), "pruning reminders")
	})
	if err != nil {
		return Commitment{}, err
	}
	return cmt, nil
}

// Reopen moves a closed commitment back into play: IN_PROGRESS when the
// deadline has not passed, EXPIRED otherwise. Any other current status is
// a no-op. Reminders are left untouched.
func (svc *service) Reopen(ctx context.Context, actorID, id string) (Commitment, error) {
	cmt, err := svc.repo.GetCommitment(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if cmt.OwnerID != actorID {
		return Commitment{}, ErrNotFound
	}

	if !cmt.Status.Closed() {
		return cmt, nil
	}

	if cmt.Deadline.Before(svc.clock.Today()) {
		cmt.Status = StatusExpired
	} else {
		cmt.Status = StatusInProgress
	}
	cmt.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCommitment(ctx, cmt)
}

// Delete removes the commitment and, by cascade, its reminder rows.
func (svc *service) Delete(ctx context.Context, actorID, id string) error {
	cmt, err := svc.repo.GetCommitment(ctx, id)
	if err != nil {
		return err
	}
	if cmt.OwnerID != actorID {
		return ErrNotFound
	}

	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.reminders.PruneAll(ctx, cmt.ID, tx); err != nil {
			return errors.Wrap(err, "pruning reminders")
		}
		return errors.Wrap(svc.repo.DeleteCommitment(ctx, cmt.ID, tx), "deleting commitment")
	})
}

// ExpireDue flips every IN_PROGRESS commitment past its deadline to
// EXPIRED. One transaction, idempotent; untouched rows keep their
// updated_at. Reminders are not pruned, an expired commitment may still
// want to nag that it is overdue.
func (svc *service) ExpireDue(ctx context.Context) (int, error) {
	var count int
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		count, err = svc.repo.ExpireDue(ctx, svc.clock.Today(), tx)
		return errors.Wrap(err, "expiring due commitments")
	})
	return count, err
}

func frozenFieldErr(field string) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: field,
		Error: "this field was set from a template and cannot be changed",
	})
}
