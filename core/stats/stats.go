package stats

import (
	"context"
	"strconv"

	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/course"
)

// NotAvailable is the percentage sentinel for an empty set.
const NotAvailable = "N/A"

// StatusCounts tallies commitments by status. The zero value is an empty tally.
type StatusCounts struct {
	InProgress   int `json:"in_progress"`
	Complete     int `json:"complete"`
	Expired      int `json:"expired"`
	Discontinued int `json:"discontinued"`
}

func (sc StatusCounts) Total() int {
	return sc.InProgress + sc.Complete + sc.Expired + sc.Discontinued
}

func (sc *StatusCounts) add(s commitment.Status) {
	switch s {
	case commitment.StatusInProgress:
		sc.InProgress++
	case commitment.StatusComplete:
		sc.Complete++
	case commitment.StatusExpired:
		sc.Expired++
	case commitment.StatusDiscontinued:
		sc.Discontinued++
	}
}

func (sc StatusCounts) count(s commitment.Status) int {
	switch s {
	case commitment.StatusInProgress:
		return sc.InProgress
	case commitment.StatusComplete:
		return sc.Complete
	case commitment.StatusExpired:
		return sc.Expired
	case commitment.StatusDiscontinued:
		return sc.Discontinued
	}
	return 0
}

// Percentages returns 100*count/total per status. ok is false when the
// tally is empty; the boundary then renders the N/A sentinel. No rounding
// is performed here.
func (sc StatusCounts) Percentages() (pcts map[commitment.Status]float64, ok bool) {
	total := sc.Total()
	if total == 0 {
		return nil, false
	}
	pcts = make(map[commitment.Status]float64, len(commitment.AllStatuses))
	for _, s := range commitment.AllStatuses {
		pcts[s] = 100 * float64(sc.count(s)) / float64(total)
	}
	return pcts, true
}

// PercentageDisplay formats one status percentage for presentation,
// yielding the N/A sentinel on an empty tally.
func (sc StatusCounts) PercentageDisplay(s commitment.Status) string {
	pcts, ok := sc.Percentages()
	if !ok {
		return NotAvailable
	}
	return strconv.FormatFloat(pcts[s], 'f', 1, 64) + "%"
}

// FromCommitments tallies each commitment's status.
func FromCommitments(cmts []commitment.Commitment) StatusCounts {
	var sc StatusCounts
	for _, c := range cmts {
		sc.add(c.Status)
	}
	return sc
}

// Aggregate sums tallies element-wise.
func Aggregate(counts ...StatusCounts) StatusCounts {
	var sum StatusCounts
	for _, sc := range counts {
		sum.InProgress += sc.InProgress
		sum.Complete += sc.Complete
		sum.Expired += sc.Expired
		sum.Discontinued += sc.Discontinued
	}
	return sum
}

// CourseStats is a read-only view combining a course and its tally.
type CourseStats struct {
	Course course.Course `json:"course"`
	Counts StatusCounts  `json:"counts"`
}

// TemplateStats is a read-only view combining a template and its tally.
type TemplateStats struct {
	Template course.Template `json:"template"`
	Counts   StatusCounts    `json:"counts"`
}

// ProviderOverview aggregates a provider's per-course and per-template
// tallies. The two totals need not agree: a commitment may sit in both
// buckets, one, or neither.
type ProviderOverview struct {
	Courses        []CourseStats   `json:"courses"`
	Templates      []TemplateStats `json:"templates"`
	CourseTotals   StatusCounts    `json:"course_totals"`
	TemplateTotals StatusCounts    `json:"template_totals"`
}

type (
	ServiceInterface interface {
		ForCourse(ctx context.Context, courseID string) (StatusCounts, error)
		ForTemplate(ctx context.Context, templateID string) (StatusCounts, error)
		CourseStatsFor(ctx context.Context, providerID string) ([]CourseStats, error)
		TemplateStatsFor(ctx context.Context, providerID string) ([]TemplateStats, error)
		Overview(ctx context.Context, providerID string) (ProviderOverview, error)
		CourseCommitments(ctx context.Context, courseID string) ([]commitment.Commitment, error)
	}

	service struct {
		commitments commitment.Repository
		courses     course.Repository
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(commitments commitment.Repository, courses course.Repository) *service {
	return &service{
		commitments: commitments,
		courses:     courses,
	}
}

// ForCourse tallies commitments associated with the course.
func (svc *service) ForCourse(ctx context.Context, courseID string) (StatusCounts, error) {
	cmts, err := svc.commitments.QueryCommitments(ctx, commitment.QueryFilter{CourseID: courseID}, nil)
	if err != nil {
		return StatusCounts{}, err
	}
	return FromCommitments(cmts), nil
}

// ForTemplate tallies commitments created from the template.
func (svc *service) ForTemplate(ctx context.Context, templateID string) (StatusCounts, error) {
	cmts, err := svc.commitments.QueryCommitments(ctx, commitment.QueryFilter{TemplateID: templateID}, nil)
	if err != nil {
		return StatusCounts{}, err
	}
	return FromCommitments(cmts), nil
}

func (svc *service) CourseStatsFor(ctx context.Context, providerID string) ([]CourseStats, error) {
	courses, err := svc.courses.QueryCourses(ctx, course.CourseFilter{OwnerID: providerID}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]CourseStats, 0, len(courses))
	for _, crs := range courses {
		counts, err := svc.ForCourse(ctx, crs.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CourseStats{Course: crs, Counts: counts})
	}
	return out, nil
}

func (svc *service) TemplateStatsFor(ctx context.Context, providerID string) ([]TemplateStats, error) {
	tpls, err := svc.courses.QueryTemplates(ctx, providerID, nil)
	if err != nil {
		return nil, err
	}
	out := make([]TemplateStats, 0, len(tpls))
	for _, tpl := range tpls {
		counts, err := svc.ForTemplate(ctx, tpl.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, TemplateStats{Template: tpl, Counts: counts})
	}
	return out, nil
}

func (svc *service) Overview(ctx context.Context, providerID string) (ProviderOverview, error) {
	courseStats, err := svc.CourseStatsFor(ctx, providerID)
	if err != nil {
		return ProviderOverview{}, err
	}
	tplStats, err := svc.TemplateStatsFor(ctx, providerID)
	if err != nil {
		return ProviderOverview{}, err
	}

	courseCounts := make([]StatusCounts, 0, len(courseStats))
	for _, cs := range courseStats {
		courseCounts = append(courseCounts, cs.Counts)
	}
	tplCounts := make([]StatusCounts, 0, len(tplStats))
	for _, ts := range tplStats {
		tplCounts = append(tplCounts, ts.Counts)
	}

	return ProviderOverview{
		Courses:        courseStats,
		Templates:      tplStats,
		CourseTotals:   Aggregate(courseCounts...),
		TemplateTotals: Aggregate(tplCounts...),
	}, nil
}

func (svc *service) CourseCommitments(ctx context.Context, courseID string) ([]commitment.Commitment, error) {
	return svc.commitments.QueryCommitments(ctx, commitment.QueryFilter{CourseID: courseID}, nil)
}
