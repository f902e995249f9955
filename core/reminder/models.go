package reminder

import (
	"context"
	"time"

	"github.com/trezcool/ahadi/core"
)

// OneShot is a single reminder email scheduled for a date. It is deleted
// once successfully sent.
type OneShot struct {
	ID           string    `json:"id"`
	CommitmentID string    `json:"commitment_id"`
	Date         time.Time `json:"date"` // civil date, midnight UTC
	CreatedAt    time.Time `json:"created_at"`
}

// Recurring is a repeating reminder email. next_email_date advances by
// the interval on every successful send.
type Recurring struct {
	ID            string    `json:"id"`
	CommitmentID  string    `json:"commitment_id"`
	IntervalDays  int       `json:"interval_days"`
	NextEmailDate time.Time `json:"next_email_date"` // civil date, midnight UTC
	CreatedAt     time.Time `json:"created_at"`
}

// Reminders bundles both kinds pending for one commitment.
type Reminders struct {
	OneShots   []OneShot   `json:"one_shots"`
	Recurrings []Recurring `json:"recurrings"`
}

// Preset reminder schedules offered at commitment creation.
type Preset string

const (
	PresetNone         Preset = "NO_REMINDERS"
	PresetDeadlineOnly Preset = "DEADLINE_ONLY"
	PresetMonthly      Preset = "MONTHLY"
	PresetWeekly       Preset = "WEEKLY"
)

// presetIntervals is the process-wide preset table.
var presetIntervals = map[Preset]int{
	PresetMonthly: 30,
	PresetWeekly:  7,
}

type Repository interface {
	CreateOneShot(ctx context.Context, r OneShot, exec ...core.DBExecutor) (OneShot, error)
	GetOneShot(ctx context.Context, id string, exec ...core.DBExecutor) (OneShot, error)
	DeleteOneShot(ctx context.Context, id string, exec ...core.DBExecutor) error
	// DueOneShots selects rows with date <= today; past-due rows are
	// included so a missed day is recovered on the next sweep.
	DueOneShots(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]OneShot, error)

	CreateRecurring(ctx context.Context, r Recurring, exec ...core.DBExecutor) (Recurring, error)
	GetRecurring(ctx context.Context, id string, exec ...core.DBExecutor) (Recurring, error)
	UpdateRecurring(ctx context.Context, r Recurring, exec ...core.DBExecutor) (Recurring, error)
	DeleteRecurring(ctx context.Context, id string, exec ...core.DBExecutor) error
	// DueRecurrings selects rows with next_email_date <= today.
	DueRecurrings(ctx context.Context, today time.Time, exec ...core.DBExecutor) ([]Recurring, error)

	ListForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) (Reminders, error)
	// PruneForCommitment removes every reminder row, both kinds, for the commitment.
	PruneForCommitment(ctx context.Context, commitmentID string, exec ...core.DBExecutor) error
}
