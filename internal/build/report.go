package build

import (
	"fmt"
	"time"

	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
)

// Failure is a sample that could not be produced in a run.
type Failure struct {
	Key      lut.SampleKey `json:"key"`
	Attempts int           `json:"attempts"`
	Reason   string        `json:"reason"`
}

// Report summarises one build run. A report with gaps describes a valid
// partial store; running the build again evaluates exactly the gaps.
type Report struct {
	RunID      string          `json:"run_id"`
	Config     lut.Config      `json:"config"`
	Requested  int             `json:"requested"`
	Existing   int             `json:"existing"`
	Evaluated  int             `json:"evaluated"`
	Failures   []Failure       `json:"failures,omitempty"`
	Gaps       []lut.SampleKey `json:"gaps,omitempty"`
	Cancelled  bool            `json:"cancelled"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Complete reports whether every requested sample is now stored.
func (r *Report) Complete() bool { return len(r.Gaps) == 0 }

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func (r *Report) status() string {
	switch {
	case r.Cancelled:
		return lutstore.RunCancelled
	case r.Complete():
		return lutstore.RunComplete
	default:
		return lutstore.RunPartial
	}
}

// Summary is a one-line description for logs.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d requested, %d already stored, %d evaluated, %d failed, %d gaps in %s",
		r.status(), r.Requested, r.Existing, r.Evaluated, len(r.Failures), len(r.Gaps),
		r.Duration().Round(time.Millisecond))
}
