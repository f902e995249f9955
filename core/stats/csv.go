package stats

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core/commitment"
)

// CSV column layouts. Count columns follow the fixed display labels;
// their order here is part of the export contract.
var (
	courseCSVHeader = []string{
		"Course Identifier", "Course Title", "Total Commitments",
		"Num. In Progress", "Num. Past Due", "Num. Completed", "Num. Discontinued",
	}
	templateCSVHeader = []string{
		"Commitment Title", "Total Commitments",
		"Num. In Progress", "Num. Past Due", "Num. Completed", "Num. Discontinued",
	}
	commitmentsCSVHeader = []string{"Commitment Title", "Status", "Deadline"}
)

func countColumns(sc StatusCounts) []string {
	return []string{
		strconv.Itoa(sc.Total()),
		strconv.Itoa(sc.InProgress),
		strconv.Itoa(sc.Expired),
		strconv.Itoa(sc.Complete),
		strconv.Itoa(sc.Discontinued),
	}
}

// WriteCourseCSV writes the aggregate per-course export: header row, then
// one row per course.
func WriteCourseCSV(w io.Writer, rows []CourseStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(courseCSVHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, row := range rows {
		rec := append([]string{row.Course.Identifier, row.Course.Title}, countColumns(row.Counts)...)
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// WriteTemplateCSV writes the aggregate per-template export.
func WriteTemplateCSV(w io.Writer, rows []TemplateStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(templateCSVHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, row := range rows {
		rec := append([]string{row.Template.Title}, countColumns(row.Counts)...)
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// WriteCommitmentsCSV writes one row per commitment of a course.
func WriteCommitmentsCSV(w io.Writer, cmts []commitment.Commitment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(commitmentsCSVHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, c := range cmts {
		rec := []string{c.Title, c.Status.Label(), c.Deadline.Format("2006-01-02")}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// ReadCourseCSV parses the aggregate course export back into per-course
// tallies, keyed as written.
func ReadCourseCSV(r io.Reader) ([]CourseStats, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	if len(records) == 0 {
		return nil, errors.New("missing csv header")
	}

	out := make([]CourseStats, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(courseCSVHeader) {
			return nil, errors.Errorf("malformed csv row: %d columns", len(rec))
		}
		counts, err := parseCountColumns(rec[2:])
		if err != nil {
			return nil, err
		}
		row := CourseStats{Counts: counts}
		row.Course.Identifier = rec[0]
		row.Course.Title = rec[1]
		out = append(out, row)
	}
	return out, nil
}

func parseCountColumns(cols []string) (StatusCounts, error) {
	nums := make([]int, len(cols))
	for i, col := range cols {
		n, err := strconv.Atoi(col)
		if err != nil {
			return StatusCounts{}, errors.Wrapf(err, "parsing csv count %q", col)
		}
		nums[i] = n
	}
	sc := StatusCounts{
		InProgress:   nums[1],
		Expired:      nums[2],
		Complete:     nums[3],
		Discontinued: nums[4],
	}
	if sc.Total() != nums[0] {
		return StatusCounts{}, errors.Errorf("csv total %d does not match counts %d", nums[0], sc.Total())
	}
	return sc, nil
}
