package commitment_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/user"
	emailsvc "github.com/trezcool/ahadi/services/email"
	logsvc "github.com/trezcool/ahadi/services/logger"
	inmemdb "github.com/trezcool/ahadi/storage/database/inmem"
)

type env struct {
	clock *core.FixedClock
	mail  *emailsvc.ConsoleServiceMock

	usrRepo user.Repository
	cmtRepo commitment.Repository
	remRepo reminder.Repository

	commitments commitment.ServiceInterface
	courses     course.ServiceInterface
	reminders   reminder.ServiceInterface
}

func setup(t *testing.T) *env {
	t.Helper()
	conf := &core.Config{
		AppName:              "Ahadi",
		FrontendBaseURL:      "http://localhost:8080",
		DefaultFromEmailAddr: "noreply@test.cd",
	}

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	cmtRepo := inmemdb.NewCommitmentRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	remRepo := inmemdb.NewReminderRepository(db)

	clock := core.NewFixedClock(2024, time.June, 1)
	mailMock := emailsvc.NewConsoleServiceMock(conf)
	logger := logsvc.NewStdLogger(log.New(io.Discard, "", 0))

	courseSvc := course.NewService(db, courseRepo, cmtRepo)
	reminderSvc := reminder.NewService(db, remRepo, cmtRepo, usrRepo, mailMock, clock, conf, logger)
	commitmentSvc := commitment.NewService(db, cmtRepo, courseSvc, reminderSvc, clock)

	return &env{
		clock:       clock,
		mail:        mailMock,
		usrRepo:     usrRepo,
		cmtRepo:     cmtRepo,
		remRepo:     remRepo,
		commitments: commitmentSvc,
		courses:     courseSvc,
		reminders:   reminderSvc,
	}
}

func (e *env) createClinician(t *testing.T, uname string) user.Clinician {
	t.Helper()
	ctx := context.Background()
	usr := user.User{Username: uname, Email: uname + "@test.cd", IsClinician: true}
	usr.SetActive(true)
	usr, err := e.usrRepo.CreateUser(ctx, usr)
	require.NoError(t, err)
	cl, err := e.usrRepo.CreateClinician(ctx, user.Clinician{UserID: usr.ID, FirstName: "Test", LastName: uname})
	require.NoError(t, err)
	return cl
}

func (e *env) createProvider(t *testing.T, uname string) user.Provider {
	t.Helper()
	ctx := context.Background()
	usr := user.User{Username: uname, Email: uname + "@test.cd", IsProvider: true}
	usr.SetActive(true)
	usr, err := e.usrRepo.CreateUser(ctx, usr)
	require.NoError(t, err)
	pr, err := e.usrRepo.CreateProvider(ctx, user.Provider{UserID: usr.ID, Institution: "Test Hospital"})
	require.NoError(t, err)
	return pr
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isValidationErr(err error) bool {
	_, ok := errors.Cause(err).(*core.ValidationError)
	return ok
}

func TestService_Create(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")

	t.Run("deadline is normalized to midnight UTC", func(t *testing.T) {
		cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Read 10 papers",
			Deadline: time.Date(2024, time.July, 1, 15, 4, 5, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusInProgress, cmt.Status)
		assert.Equal(t, date(2024, time.July, 1), cmt.Deadline)
		assert.Equal(t, owner.ID, cmt.OwnerID)
	})

	t.Run("past deadline is rejected", func(t *testing.T) {
		_, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Too late",
			Deadline: date(2024, time.May, 31),
		})
		assert.True(t, isValidationErr(err))
	})

	t.Run("deadline of today is accepted", func(t *testing.T) {
		_, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Just in time",
			Deadline: date(2024, time.June, 1),
		})
		assert.NoError(t, err)
	})

	t.Run("association requires enrollment", func(t *testing.T) {
		provider := e.createProvider(t, "prov")
		crs, err := e.courses.CreateCourse(ctx, provider, course.NewCourse{Title: "Cardiology 101"})
		require.NoError(t, err)

		_, err = e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Course work",
			Deadline: date(2024, time.July, 1),
			CourseID: crs.ID,
		})
		assert.True(t, isValidationErr(err), "not enrolled yet")

		require.NoError(t, e.courses.Enroll(ctx, crs.ID, owner.ID, crs.JoinCode))
		cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Course work",
			Deadline: date(2024, time.July, 1),
			CourseID: crs.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, crs.ID, cmt.CourseID)
	})

	t.Run("template freezes title and description", func(t *testing.T) {
		provider := e.createProvider(t, "prov2")
		tpl, err := e.courses.CreateTemplate(ctx, provider, course.NewTemplate{
			Title:       "Attend grand rounds",
			Description: "Weekly for 3 months",
		})
		require.NoError(t, err)

		cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:      "my own words",
			Deadline:   date(2024, time.July, 1),
			TemplateID: tpl.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, tpl.Title, cmt.Title)
		assert.Equal(t, tpl.Description, cmt.Description)
		assert.True(t, cmt.FromTemplate())
	})
}

func TestService_Edit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")
	other := e.createClinician(t, "kin")
	strPtr := func(s string) *string { return &s }
	datePtr := func(d time.Time) *time.Time { return &d }

	cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
		Title:    "Read 10 papers",
		Deadline: date(2024, time.July, 1),
	})
	require.NoError(t, err)

	t.Run("only the owner may edit", func(t *testing.T) {
		_, err := e.commitments.Edit(ctx, other.ID, cmt.ID, commitment.EditCommitment{Title: strPtr("hijack")})
		assert.Equal(t, commitment.ErrNotFound, errors.Cause(err))
	})

	t.Run("nil fields are left as-is", func(t *testing.T) {
		got, err := e.commitments.Edit(ctx, owner.ID, cmt.ID, commitment.EditCommitment{Description: strPtr("from PubMed")})
		require.NoError(t, err)
		assert.Equal(t, "Read 10 papers", got.Title)
		assert.Equal(t, "from PubMed", got.Description)
	})

	t.Run("past deadline is rejected", func(t *testing.T) {
		_, err := e.commitments.Edit(ctx, owner.ID, cmt.ID, commitment.EditCommitment{Deadline: datePtr(date(2024, time.January, 1))})
		assert.True(t, isValidationErr(err))
	})

	t.Run("deadline change does not flip the status", func(t *testing.T) {
		got, err := e.commitments.Edit(ctx, owner.ID, cmt.ID, commitment.EditCommitment{Deadline: datePtr(date(2024, time.August, 1))})
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusInProgress, got.Status)
	})

	t.Run("templated text is frozen", func(t *testing.T) {
		provider := e.createProvider(t, "prov")
		tpl, err := e.courses.CreateTemplate(ctx, provider, course.NewTemplate{Title: "Attend grand rounds"})
		require.NoError(t, err)
		templated, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Deadline:   date(2024, time.July, 1),
			TemplateID: tpl.ID,
		})
		require.NoError(t, err)

		_, err = e.commitments.Edit(ctx, owner.ID, templated.ID, commitment.EditCommitment{Title: strPtr("rewritten")})
		assert.True(t, isValidationErr(err))

		// submitting the current values verbatim is fine
		_, err = e.commitments.Edit(ctx, owner.ID, templated.ID, commitment.EditCommitment{Title: strPtr(tpl.Title)})
		assert.NoError(t, err)

		// the deadline is never frozen
		got, err := e.commitments.Edit(ctx, owner.ID, templated.ID, commitment.EditCommitment{Deadline: datePtr(date(2024, time.September, 1))})
		require.NoError(t, err)
		assert.Equal(t, date(2024, time.September, 1), got.Deadline)
	})
}

func TestService_ApplyTemplate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")
	provider := e.createProvider(t, "prov")

	tpl, err := e.courses.CreateTemplate(ctx, provider, course.NewTemplate{
		Title:       "Attend grand rounds",
		Description: "Weekly for 3 months",
	})
	require.NoError(t, err)

	cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
		Title:    "my own words",
		Deadline: date(2024, time.July, 1),
	})
	require.NoError(t, err)

	got, err := e.commitments.ApplyTemplate(ctx, owner.ID, cmt.ID, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.Title, got.Title)
	assert.Equal(t, tpl.Description, got.Description)
	assert.Equal(t, tpl.ID, got.TemplateID)

	_, err = e.commitments.ApplyTemplate(ctx, "someone-else", cmt.ID, tpl.ID)
	assert.Equal(t, commitment.ErrNotFound, errors.Cause(err))
}

func TestService_CloseTransitions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")

	newCmt := func(t *testing.T) commitment.Commitment {
		cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
			Title:    "Read 10 papers",
			Deadline: date(2024, time.July, 1),
		})
		require.NoError(t, err)
		return cmt
	}

	t.Run("complete prunes reminders", func(t *testing.T) {
		cmt := newCmt(t)
		_, err := e.reminders.ScheduleOneShot(ctx, owner.ID, cmt.ID, date(2024, time.June, 15))
		require.NoError(t, err)
		_, err = e.reminders.ScheduleRecurring(ctx, owner.ID, cmt.ID, 7, nil)
		require.NoError(t, err)

		got, err := e.commitments.MarkComplete(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusComplete, got.Status)

		rems, err := e.remRepo.ListForCommitment(ctx, cmt.ID)
		require.NoError(t, err)
		assert.Empty(t, rems.OneShots)
		assert.Empty(t, rems.Recurrings)
	})

	t.Run("discontinue prunes reminders", func(t *testing.T) {
		cmt := newCmt(t)
		_, err := e.reminders.ScheduleOneShot(ctx, owner.ID, cmt.ID, date(2024, time.June, 15))
		require.NoError(t, err)

		got, err := e.commitments.MarkDiscontinued(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusDiscontinued, got.Status)

		rems, err := e.remRepo.ListForCommitment(ctx, cmt.ID)
		require.NoError(t, err)
		assert.Empty(t, rems.OneShots)
	})

	t.Run("only the owner may close", func(t *testing.T) {
		cmt := newCmt(t)
		_, err := e.commitments.MarkComplete(ctx, "someone-else", cmt.ID)
		assert.Equal(t, commitment.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Reopen(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")

	cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
		Title:    "Read 10 papers",
		Deadline: date(2024, time.July, 1),
	})
	require.NoError(t, err)

	t.Run("reopening an open commitment is a no-op", func(t *testing.T) {
		got, err := e.commitments.Reopen(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusInProgress, got.Status)
	})

	t.Run("reopen before the deadline yields in-progress", func(t *testing.T) {
		_, err := e.commitments.MarkComplete(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)

		got, err := e.commitments.Reopen(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusInProgress, got.Status)
	})

	t.Run("reopen past the deadline yields expired", func(t *testing.T) {
		_, err := e.commitments.MarkDiscontinued(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)

		e.clock.Date = date(2024, time.July, 2)
		defer func() { e.clock.Date = date(2024, time.June, 1) }()

		got, err := e.commitments.Reopen(ctx, owner.ID, cmt.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusExpired, got.Status)
	})
}

func TestService_ExpireDue(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")

	// seed directly through the repo; the service refuses past deadlines
	mkCmt := func(t *testing.T, deadline time.Time, status commitment.Status) commitment.Commitment {
		cmt, err := e.cmtRepo.CreateCommitment(ctx, commitment.Commitment{
			OwnerID:  owner.ID,
			Title:    "seeded",
			Deadline: deadline,
			Status:   status,
		})
		require.NoError(t, err)
		return cmt
	}

	overdue1 := mkCmt(t, date(2024, time.May, 1), commitment.StatusInProgress)
	overdue2 := mkCmt(t, date(2024, time.May, 31), commitment.StatusInProgress)
	dueToday := mkCmt(t, date(2024, time.June, 1), commitment.StatusInProgress)
	future := mkCmt(t, date(2024, time.July, 1), commitment.StatusInProgress)
	closed := mkCmt(t, date(2024, time.May, 1), commitment.StatusComplete)

	n, err := e.commitments.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wantStatus := func(t *testing.T, id string, want commitment.Status) {
		got, err := e.cmtRepo.GetCommitment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}
	wantStatus(t, overdue1.ID, commitment.StatusExpired)
	wantStatus(t, overdue2.ID, commitment.StatusExpired)
	wantStatus(t, dueToday.ID, commitment.StatusInProgress) // due today is not yet overdue
	wantStatus(t, future.ID, commitment.StatusInProgress)
	wantStatus(t, closed.ID, commitment.StatusComplete)

	// the sweep only touches the rows it flips
	updatedAt := func(t *testing.T, id string) time.Time {
		got, err := e.cmtRepo.GetCommitment(ctx, id)
		require.NoError(t, err)
		return got.UpdatedAt
	}
	assert.True(t, updatedAt(t, dueToday.ID).Equal(dueToday.UpdatedAt))
	assert.True(t, updatedAt(t, future.ID).Equal(future.UpdatedAt))
	assert.True(t, updatedAt(t, closed.ID).Equal(closed.UpdatedAt))

	// the sweep is idempotent: a second run flips nothing and leaves
	// every timestamp alone
	stamps := make(map[string]time.Time)
	for _, id := range []string{overdue1.ID, overdue2.ID, dueToday.ID, future.ID, closed.ID} {
		stamps[id] = updatedAt(t, id)
	}

	n, err = e.commitments.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for id, stamp := range stamps {
		assert.True(t, updatedAt(t, id).Equal(stamp))
	}
}

func TestService_Delete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createClinician(t, "awe")

	cmt, err := e.commitments.Create(ctx, owner, commitment.NewCommitment{
		Title:    "Read 10 papers",
		Deadline: date(2024, time.July, 1),
	})
	require.NoError(t, err)
	_, err = e.reminders.ScheduleOneShot(ctx, owner.ID, cmt.ID, date(2024, time.June, 15))
	require.NoError(t, err)

	err = e.commitments.Delete(ctx, "someone-else", cmt.ID)
	assert.Equal(t, commitment.ErrNotFound, errors.Cause(err))

	require.NoError(t, e.commitments.Delete(ctx, owner.ID, cmt.ID))

	_, err = e.cmtRepo.GetCommitment(ctx, cmt.ID)
	assert.Equal(t, commitment.ErrNotFound, errors.Cause(err))

	rems, err := e.remRepo.ListForCommitment(ctx, cmt.ID)
	require.NoError(t, err)
	assert.Empty(t, rems.OneShots)
}
