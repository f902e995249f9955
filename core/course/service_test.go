package course_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/user"
	inmemdb "github.com/trezcool/ahadi/storage/database/inmem"
)

type env struct {
	usrRepo user.Repository
	cmtRepo commitment.Repository
	courses course.ServiceInterface
}

func setup(t *testing.T) *env {
	t.Helper()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	cmtRepo := inmemdb.NewCommitmentRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)

	return &env{
		usrRepo: usrRepo,
		cmtRepo: cmtRepo,
		courses: course.NewService(db, courseRepo, cmtRepo),
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

func TestService_CreateCourse(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")

	crs, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{
		Title:      "Cardiology 101",
		Identifier: "CARD-101",
		StartDate:  date(2024, time.June, 1),
		EndDate:    date(2024, time.September, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, crs.OwnerID)

	t.Run("join code is 8 uppercase letters", func(t *testing.T) {
		assert.Len(t, crs.JoinCode, 8)
		assert.Equal(t, strings.ToUpper(crs.JoinCode), crs.JoinCode)
		for _, r := range crs.JoinCode {
			assert.True(t, r >= 'A' && r <= 'Z', "unexpected rune %q", r)
		}
	})

	t.Run("each course gets its own code", func(t *testing.T) {
		other, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{Title: "Oncology 201"})
		require.NoError(t, err)
		assert.NotEqual(t, crs.JoinCode, other.JoinCode)
	})

	t.Run("the code survives edits", func(t *testing.T) {
		title := "Cardiology 102"
		got, err := e.courses.EditCourse(ctx, owner.ID, crs.ID, course.EditCourse{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Cardiology 102", got.Title)
		assert.Equal(t, crs.JoinCode, got.JoinCode)
	})
}

func TestService_EditCourse(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")
	other := e.createProvider(t, "rival")

	crs, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{Title: "Cardiology 101"})
	require.NoError(t, err)

	t.Run("only the owner may edit", func(t *testing.T) {
		title := "hijack"
		_, err := e.courses.EditCourse(ctx, other.ID, crs.ID, course.EditCourse{Title: &title})
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	})

	t.Run("end date cannot precede start date", func(t *testing.T) {
		start := date(2024, time.September, 1)
		end := date(2024, time.June, 1)
		_, err := e.courses.EditCourse(ctx, owner.ID, crs.ID, course.EditCourse{StartDate: &start, EndDate: &end})
		assert.True(t, isValidationErr(err))
	})
}

func TestService_Enrollment(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")
	student := e.createClinician(t, "awe")

	crs, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{Title: "Cardiology 101"})
	require.NoError(t, err)

	t.Run("enroll demands the exact code", func(t *testing.T) {
		err := e.courses.Enroll(ctx, crs.ID, student.ID, "WRONGCOD")
		assert.Equal(t, course.ErrInvalidJoinCode, errors.Cause(err))

		require.NoError(t, e.courses.Enroll(ctx, crs.ID, student.ID, crs.JoinCode))
		enrolled, err := e.courses.IsEnrolled(ctx, crs.ID, student.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("enrolling twice is a no-op", func(t *testing.T) {
		require.NoError(t, e.courses.Enroll(ctx, crs.ID, student.ID, crs.JoinCode))
		students, err := e.courses.Students(ctx, owner.ID, crs.ID)
		require.NoError(t, err)
		assert.Len(t, students, 1)
	})

	t.Run("enroll by code is case-insensitive", func(t *testing.T) {
		joiner := e.createClinician(t, "kin")
		got, err := e.courses.EnrollByCode(ctx, joiner.ID, "  "+strings.ToLower(crs.JoinCode)+" ")
		require.NoError(t, err)
		assert.Equal(t, crs.ID, got.ID)

		enrolled, err := e.courses.IsEnrolled(ctx, crs.ID, joiner.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("unknown code reads as invalid", func(t *testing.T) {
		_, err := e.courses.EnrollByCode(ctx, student.ID, "NOSUCHCD")
		assert.Equal(t, course.ErrInvalidJoinCode, errors.Cause(err))
	})

	t.Run("the roster is owner-only", func(t *testing.T) {
		_, err := e.courses.Students(ctx, student.ID, crs.ID)
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	})

	t.Run("enrolled courses are listed for the student", func(t *testing.T) {
		courses, err := e.courses.CoursesEnrolledIn(ctx, student.ID)
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, crs.ID, courses[0].ID)
	})
}

func TestService_SuggestedTemplates(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")
	other := e.createProvider(t, "rival")

	crs, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{Title: "Cardiology 101"})
	require.NoError(t, err)
	mine, err := e.courses.CreateTemplate(ctx, owner, course.NewTemplate{Title: "Attend grand rounds"})
	require.NoError(t, err)
	theirs, err := e.courses.CreateTemplate(ctx, other, course.NewTemplate{Title: "Poached"})
	require.NoError(t, err)

	t.Run("templates must belong to the course owner", func(t *testing.T) {
		err := e.courses.SetSuggestedTemplates(ctx, owner.ID, crs.ID, []string{mine.ID, theirs.ID})
		assert.True(t, isValidationErr(err))

		// nothing was linked
		tpls, err := e.courses.SuggestedTemplates(ctx, crs.ID)
		require.NoError(t, err)
		assert.Empty(t, tpls)
	})

	t.Run("the set is replaced wholesale", func(t *testing.T) {
		second, err := e.courses.CreateTemplate(ctx, owner, course.NewTemplate{Title: "Read 10 papers"})
		require.NoError(t, err)

		require.NoError(t, e.courses.SetSuggestedTemplates(ctx, owner.ID, crs.ID, []string{mine.ID, second.ID}))
		tpls, err := e.courses.SuggestedTemplates(ctx, crs.ID)
		require.NoError(t, err)
		assert.Len(t, tpls, 2)

		require.NoError(t, e.courses.SetSuggestedTemplates(ctx, owner.ID, crs.ID, []string{second.ID}))
		tpls, err = e.courses.SuggestedTemplates(ctx, crs.ID)
		require.NoError(t, err)
		require.Len(t, tpls, 1)
		assert.Equal(t, second.ID, tpls[0].ID)

		ok, err := e.courses.IsSuggested(ctx, crs.ID, second.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("only the owner may set the list", func(t *testing.T) {
		err := e.courses.SetSuggestedTemplates(ctx, other.ID, crs.ID, []string{theirs.ID})
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	})
}

func TestService_DeleteCourse(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")
	student := e.createClinician(t, "awe")

	crs, err := e.courses.CreateCourse(ctx, owner, course.NewCourse{Title: "Cardiology 101"})
	require.NoError(t, err)
	require.NoError(t, e.courses.Enroll(ctx, crs.ID, student.ID, crs.JoinCode))

	cmt, err := e.cmtRepo.CreateCommitment(ctx, commitment.Commitment{
		OwnerID:  student.ID,
		Title:    "Course work",
		Deadline: date(2024, time.July, 1),
		Status:   commitment.StatusInProgress,
		CourseID: crs.ID,
	})
	require.NoError(t, err)

	err = e.courses.DeleteCourse(ctx, student.ID, crs.ID)
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))

	require.NoError(t, e.courses.DeleteCourse(ctx, owner.ID, crs.ID))

	_, err = e.courses.GetCourse(ctx, crs.ID)
	assert.Equal(t, course.ErrNotFound, errors.Cause(err))

	// the commitment survives, detached
	got, err := e.cmtRepo.GetCommitment(ctx, cmt.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CourseID)
}

func TestService_Templates(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.createProvider(t, "prov")
	other := e.createProvider(t, "rival")

	tpl, err := e.courses.CreateTemplate(ctx, owner, course.NewTemplate{
		Title:       "Attend grand rounds",
		Description: "Weekly for 3 months",
	})
	require.NoError(t, err)

	t.Run("edits are owner-only", func(t *testing.T) {
		title := "hijack"
		_, err := e.courses.EditTemplate(ctx, other.ID, tpl.ID, course.EditTemplate{Title: &title})
		assert.Equal(t, course.ErrTemplateNotFound, errors.Cause(err))

		desc := "Weekly for 6 months"
		got, err := e.courses.EditTemplate(ctx, owner.ID, tpl.ID, course.EditTemplate{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, "Attend grand rounds", got.Title)
		assert.Equal(t, "Weekly for 6 months", got.Description)
	})

	t.Run("listing is scoped to the owner", func(t *testing.T) {
		tpls, err := e.courses.TemplatesOwnedBy(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, tpls, 1)

		tpls, err = e.courses.TemplatesOwnedBy(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, tpls)
	})

	t.Run("delete", func(t *testing.T) {
		err := e.courses.DeleteTemplate(ctx, other.ID, tpl.ID)
		assert.Equal(t, course.ErrTemplateNotFound, errors.Cause(err))

		require.NoError(t, e.courses.DeleteTemplate(ctx, owner.ID, tpl.ID))
		_, err = e.courses.GetTemplate(ctx, tpl.ID)
		assert.Equal(t, course.ErrTemplateNotFound, errors.Cause(err))
	})
}
