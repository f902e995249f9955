package stats_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/stats"
	inmemdb "github.com/trezcool/ahadi/storage/database/inmem"
)

func cmtsWithStatuses(statuses ...commitment.Status) []commitment.Commitment {
	cmts := make([]commitment.Commitment, 0, len(statuses))
	for _, s := range statuses {
		cmts = append(cmts, commitment.Commitment{Status: s})
	}
	return cmts
}

func TestStatusCounts(t *testing.T) {
	sc := stats.FromCommitments(cmtsWithStatuses(
		commitment.StatusInProgress,
		commitment.StatusInProgress,
		commitment.StatusComplete,
		commitment.StatusExpired,
		commitment.StatusDiscontinued,
	))
	assert.Equal(t, stats.StatusCounts{InProgress: 2, Complete: 1, Expired: 1, Discontinued: 1}, sc)
	assert.Equal(t, 5, sc.Total())

	t.Run("percentages", func(t *testing.T) {
		pcts, ok := sc.Percentages()
		require.True(t, ok)
		assert.InDelta(t, 40, pcts[commitment.StatusInProgress], 1e-9)
		assert.InDelta(t, 20, pcts[commitment.StatusComplete], 1e-9)

		var sum float64
		for _, p := range pcts {
			sum += p
		}
		assert.InDelta(t, 100, sum, 1e-9)

		assert.Equal(t, "40.0%", sc.PercentageDisplay(commitment.StatusInProgress))
	})

	t.Run("empty tally", func(t *testing.T) {
		var empty stats.StatusCounts
		_, ok := empty.Percentages()
		assert.False(t, ok)
		assert.Equal(t, stats.NotAvailable, empty.PercentageDisplay(commitment.StatusComplete))
	})

	t.Run("aggregate", func(t *testing.T) {
		other := stats.StatusCounts{InProgress: 1, Complete: 3}
		sum := stats.Aggregate(sc, other, stats.StatusCounts{})
		assert.Equal(t, stats.StatusCounts{InProgress: 3, Complete: 4, Expired: 1, Discontinued: 1}, sum)
		assert.Equal(t, sc.Total()+other.Total(), sum.Total())
	})
}

func TestCourseCSVRoundTrip(t *testing.T) {
	rows := []stats.CourseStats{
		{
			Course: course.Course{Identifier: "CARD-101", Title: "Cardiology 101"},
			Counts: stats.StatusCounts{InProgress: 3, Complete: 2, Expired: 1},
		},
		{
			Course: course.Course{Title: "Oncology 201"}, // no identifier
			Counts: stats.StatusCounts{},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, stats.WriteCourseCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"Course Identifier,Course Title,Total Commitments,Num. In Progress,Num. Past Due,Num. Completed,Num. Discontinued",
		lines[0])
	assert.Equal(t, "CARD-101,Cardiology 101,6,3,1,2,0", lines[1])
	assert.Equal(t, ",Oncology 201,0,0,0,0,0", lines[2])

	got, err := stats.ReadCourseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0].Counts, got[0].Counts)
	assert.Equal(t, "CARD-101", got[0].Course.Identifier)
	assert.Equal(t, rows[1].Counts, got[1].Counts)
}

func TestReadCourseCSV_Malformed(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := stats.ReadCourseCSV(strings.NewReader(""))
		assert.Error(t, err)
	})

	t.Run("inconsistent total", func(t *testing.T) {
		in := "Course Identifier,Course Title,Total Commitments,Num. In Progress,Num. Past Due,Num. Completed,Num. Discontinued\n" +
			"CARD-101,Cardiology 101,9,3,1,2,0\n"
		_, err := stats.ReadCourseCSV(strings.NewReader(in))
		assert.Error(t, err)
	})

	t.Run("non-numeric count", func(t *testing.T) {
		in := "Course Identifier,Course Title,Total Commitments,Num. In Progress,Num. Past Due,Num. Completed,Num. Discontinued\n" +
			"CARD-101,Cardiology 101,six,3,1,2,0\n"
		_, err := stats.ReadCourseCSV(strings.NewReader(in))
		assert.Error(t, err)
	})
}

func TestWriteTemplateCSV(t *testing.T) {
	rows := []stats.TemplateStats{{
		Template: course.Template{Title: "Attend grand rounds"},
		Counts:   stats.StatusCounts{InProgress: 1, Discontinued: 2},
	}}

	var buf bytes.Buffer
	require.NoError(t, stats.WriteTemplateCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"Commitment Title,Total Commitments,Num. In Progress,Num. Past Due,Num. Completed,Num. Discontinued",
		lines[0])
	assert.Equal(t, "Attend grand rounds,3,1,0,0,2", lines[1])
}

func TestWriteCommitmentsCSV(t *testing.T) {
	cmts := []commitment.Commitment{
		{
			Title:    "Read 10 papers",
			Status:   commitment.StatusExpired,
			Deadline: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			Title:    "Attend grand rounds",
			Status:   commitment.StatusInProgress,
			Deadline: time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, stats.WriteCommitmentsCSV(&buf, cmts))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Commitment Title,Status,Deadline", lines[0])
	assert.Equal(t, "Read 10 papers,Past Due,2024-07-01", lines[1])
	assert.Equal(t, "Attend grand rounds,In Progress,2024-09-15", lines[2])
}

func TestService_Overview(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	cmtRepo := inmemdb.NewCommitmentRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	svc := stats.NewService(cmtRepo, courseRepo)

	crs, err := courseRepo.CreateCourse(ctx, course.Course{OwnerID: "prov", Title: "Cardiology 101", JoinCode: "ABCDEFGH"})
	require.NoError(t, err)
	tpl, err := courseRepo.CreateTemplate(ctx, course.Template{OwnerID: "prov", Title: "Attend grand rounds"})
	require.NoError(t, err)

	deadline := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	mkCmt := func(t *testing.T, status commitment.Status, courseID, templateID string) {
		t.Helper()
		_, err := cmtRepo.CreateCommitment(ctx, commitment.Commitment{
			OwnerID:    "awe",
			Title:      "seeded",
			Deadline:   deadline,
			Status:     status,
			CourseID:   courseID,
			TemplateID: templateID,
		})
		require.NoError(t, err)
	}
	mkCmt(t, commitment.StatusInProgress, crs.ID, "")
	mkCmt(t, commitment.StatusComplete, crs.ID, tpl.ID) // counted in both buckets
	mkCmt(t, commitment.StatusExpired, "", tpl.ID)
	mkCmt(t, commitment.StatusDiscontinued, "", "") // in neither

	ov, err := svc.Overview(ctx, "prov")
	require.NoError(t, err)

	require.Len(t, ov.Courses, 1)
	assert.Equal(t, stats.StatusCounts{InProgress: 1, Complete: 1}, ov.Courses[0].Counts)
	require.Len(t, ov.Templates, 1)
	assert.Equal(t, stats.StatusCounts{Complete: 1, Expired: 1}, ov.Templates[0].Counts)

	assert.Equal(t, stats.StatusCounts{InProgress: 1, Complete: 1}, ov.CourseTotals)
	assert.Equal(t, stats.StatusCounts{Complete: 1, Expired: 1}, ov.TemplateTotals)

	t.Run("another provider sees nothing", func(t *testing.T) {
		ov, err := svc.Overview(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, ov.Courses)
		assert.Empty(t, ov.Templates)
	})
}
