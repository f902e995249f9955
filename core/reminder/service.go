package reminder

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("reminder not found")
)

type (
	ServiceInterface interface {
		ScheduleOneShot(ctx context.Context, actorID, commitmentID string, date time.Time) (OneShot, error)
		ScheduleRecurring(ctx context.Context, actorID, commitmentID string, intervalDays int, next *time.Time) (Recurring, error)
		ApplyPreset(ctx context.Context, cmt commitment.Commitment, preset Preset) error
		ListFor(ctx context.Context, actorID, commitmentID string) (Reminders, error)
		DeleteOneShot(ctx context.Context, actorID, id string) error
		DeleteRecurring(ctx context.Context, actorID, id string) error
		Clear(ctx context.Context, actorID, commitmentID string) error
		PruneAll(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error
		DispatchDue(ctx context.Context) (int, error)
	}

	service struct {
		db          core.DB
		repo        Repository
		commitments commitment.Repository
		users       user.Repository
		mailSvc     core.EmailService
		clock       core.Clock
		conf        *core.Config
		logger      core.Logger
	}
)

var (
	_ ServiceInterface          = (*service)(nil)
	_ commitment.ReminderPruner = (*service)(nil)
)

func NewService(
	db core.DB,
	repo Repository,
	commitments commitment.Repository,
	users user.Repository,
	mailSvc core.EmailService,
	clock core.Clock,
	conf *core.Config,
	logger core.Logger,
) *service {
	return &service{
		db:          db,
		repo:        repo,
		commitments: commitments,
		users:       users,
		mailSvc:     mailSvc,
		clock:       clock,
		conf:        conf,
		logger:      logger,
	}
}

// ScheduleOneShot creates a single reminder. The date must be at least
// tomorrow; only the commitment's owner may schedule.
func (svc *service) ScheduleOneShot(ctx context.Context, actorID, commitmentID string, date time.Time) (OneShot, error) {
	cmt, err := svc.ownedCommitment(ctx, actorID, commitmentID)
	if err != nil {
		return OneShot{}, err
	}

	date = core.Midnight(date)
	if !date.After(svc.clock.Today()) {
		return OneShot{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "reminder date must be at least tomorrow"})
	}

	return svc.repo.CreateOneShot(ctx, OneShot{
		CommitmentID: cmt.ID,
		Date:         date,
		CreatedAt:    time.Now().UTC(),
	})
}

// ScheduleRecurring creates a repeating reminder. The interval is in
// days, at least 1; next defaults to tomorrow when unset.
func (svc *service) ScheduleRecurring(ctx context.Context, actorID, commitmentID string, intervalDays int, next *time.Time) (Recurring, error) {
	cmt, err := svc.ownedCommitment(ctx, actorID, commitmentID)
	if err != nil {
		return Recurring{}, err
	}

	if intervalDays < 1 {
		return Recurring{}, core.NewValidationError(nil, core.FieldError{Field: "interval_days", Error: "interval must be at least 1 day"})
	}

	nextDate := svc.tomorrow()
	if next != nil && !next.IsZero() {
		nextDate = core.Midnight(*next)
	}

	return svc.repo.CreateRecurring(ctx, Recurring{
		CommitmentID:  cmt.ID,
		IntervalDays:  intervalDays,
		NextEmailDate: nextDate,
		CreatedAt:     time.Now().UTC(),
	})
}

// ApplyPreset creates the schedule rows a creation-time preset implies.
func (svc *service) ApplyPreset(ctx context.Context, cmt commitment.Commitment, preset Preset) error {
	now := time.Now().UTC()
	switch preset {
	case "", PresetNone:
		return nil
	case PresetDeadlineOnly:
		_, err := svc.repo.CreateOneShot(ctx, OneShot{
			CommitmentID: cmt.ID,
			Date:         core.Midnight(cmt.Deadline),
			CreatedAt:    now,
		})
		return err
	case PresetMonthly, PresetWeekly:
		_, err := svc.repo.CreateRecurring(ctx, Recurring{
			CommitmentID:  cmt.ID,
			IntervalDays:  presetIntervals[preset],
			NextEmailDate: svc.tomorrow(),
			CreatedAt:     now,
		})
		return err
	}
	return core.NewValidationError(nil, core.FieldError{Field: "reminder_preset", Error: "unknown reminder preset"})
}

func (svc *service) ListFor(ctx context.Context, actorID, commitmentID string) (Reminders, error) {
	cmt, err := svc.ownedCommitment(ctx, actorID, commitmentID)
	if err != nil {
		return Reminders{}, err
	}
	return svc.repo.ListForCommitment(ctx, cmt.ID)
}

func (svc *service) DeleteOneShot(ctx context.Context, actorID, id string) error {
	r, err := svc.repo.GetOneShot(ctx, id)
	if err != nil {
		return err
	}
	if _, err = svc.ownedCommitment(ctx, actorID, r.CommitmentID); err != nil {
		return err
	}
	return svc.repo.DeleteOneShot(ctx, id)
}

func (svc *service) DeleteRecurring(ctx context.Context, actorID, id string) error {
	r, err := svc.repo.GetRecurring(ctx, id)
	if err != nil {
		return err
	}
	if _, err = svc.ownedCommitment(ctx, actorID, r.CommitmentID); err != nil {
		return err
	}
	return svc.repo.DeleteRecurring(ctx, id)
}

// Clear removes every reminder for the commitment at the owner's request.
func (svc *service) Clear(ctx context.Context, actorID, commitmentID string) error {
	cmt, err := svc.ownedCommitment(ctx, actorID, commitmentID)
	if err != nil {
		return err
	}
	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		return svc.repo.PruneForCommitment(ctx, cmt.ID, tx)
	})
}

// PruneAll removes every reminder row for a commitment. Called by the
// commitment engine on close transitions, inside the engine's transaction.
func (svc *service) PruneAll(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error {
	return svc.repo.PruneForCommitment(ctx, commitmentID, exec...)
}

// DispatchDue runs one dispatch sweep and returns the number of emails
// sent. Transport failures are logged and skipped per-reminder; any other
// error aborts the sweep. Each successful send commits its own row update
// so a crash mid-sweep loses at most the row being processed.
func (svc *service) DispatchDue(ctx context.Context) (int, error) {
	today := svc.clock.Today()
	var sent int

	oneShots, err := svc.repo.DueOneShots(ctx, today)
	if err != nil {
		return sent, errors.Wrap(err, "selecting due one-shot reminders")
	}
	for _, r := range oneShots {
		ok, err := svc.dispatchOneShot(ctx, r)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}

	recurrings, err := svc.repo.DueRecurrings(ctx, today)
	if err != nil {
		return sent, errors.Wrap(err, "selecting due recurring reminders")
	}
	for _, r := range recurrings {
		ok, err := svc.dispatchRecurring(ctx, r)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}

	return sent, nil
}

func (svc *service) dispatchOneShot(ctx context.Context, r OneShot) (bool, error) {
	msg, err := svc.renderMessage(ctx, r.CommitmentID)
	if err != nil {
		if errors.Cause(err) == commitment.ErrNotFound {
			return false, nil // row orphaned by a concurrent delete
		}
		return false, err
	}

	if err = svc.mailSvc.SendMessage(msg); err != nil {
		if core.IsTransportError(err) {
			svc.logger.Warn(fmt.Sprintf("reminder %s: send failed, kept for retry: %v", r.ID, err), err)
			return false, nil
		}
		return false, err
	}

	// delete after the send returns; re-read under the transaction in
	// case the row went away meanwhile
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.repo.GetOneShot(ctx, r.ID, tx); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return nil
			}
			return err
		}
		return svc.repo.DeleteOneShot(ctx, r.ID, tx)
	})
	return err == nil, err
}

func (svc *service) dispatchRecurring(ctx context.Context, r Recurring) (bool, error) {
	msg, err := svc.renderMessage(ctx, r.CommitmentID)
	if err != nil {
		if errors.Cause(err) == commitment.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if err = svc.mailSvc.SendMessage(msg); err != nil {
		if core.IsTransportError(err) {
			svc.logger.Warn(fmt.Sprintf("reminder %s: send failed, kept for retry: %v", r.ID, err), err)
			return false, nil
		}
		return false, err
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		curr, err := svc.repo.GetRecurring(ctx, r.ID, tx)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return nil
			}
			return err
		}
		// skip if another worker already advanced the row
		if !curr.NextEmailDate.Equal(r.NextEmailDate) {
			return nil
		}
		curr.NextEmailDate = curr.NextEmailDate.AddDate(0, 0, curr.IntervalDays)
		_, err = svc.repo.UpdateRecurring(ctx, curr, tx)
		return err
	})
	return err == nil, err
}

// renderMessage builds the reminder email for a commitment: title,
// deadline, and a link back to the commitment view.
func (svc *service) renderMessage(ctx context.Context, commitmentID string) (*core.EmailMessage, error) {
	cmt, err := svc.commitments.GetCommitment(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	owner, err := svc.users.GetClinician(ctx, user.ProfileFilter{ID: cmt.OwnerID})
	if err != nil {
		return nil, errors.Wrap(err, "finding commitment owner")
	}
	usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: owner.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "finding owner account")
	}

	link := fmt.Sprintf("%s/commitment/%s/view", svc.conf.FrontendBaseURL, cmt.ID)
	return &core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Commitment reminder: " + cmt.Title,
		TemplateName: "commitment-reminder",
		TemplateData: struct {
			Title    string
			Deadline string
			Link     string
		}{cmt.Title, cmt.Deadline.Format("Jan 2, 2006"), link},
		BodyStr: fmt.Sprintf(
			"This is a reminder about your commitment %q, due %s.\n\nView it here: %s\n",
			cmt.Title, cmt.Deadline.Format("Jan 2, 2006"), link),
	}, nil
}

func (svc *service) tomorrow() time.Time {
	return svc.clock.Today().AddDate(0, 0, 1)
}

// ownedCommitment loads the commitment and enforces that actorID owns
// it; non-owners get ErrNotFound.
func (svc *service) ownedCommitment(ctx context.Context, actorID, commitmentID string) (commitment.Commitment, error) {
	cmt, err := svc.commitments.GetCommitment(ctx, commitmentID)
	if err != nil {
		return commitment.Commitment{}, err
	}
	if cmt.OwnerID != actorID {
		return commitment.Commitment{}, commitment.ErrNotFound
	}
	return cmt, nil
}
