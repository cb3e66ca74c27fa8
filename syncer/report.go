package syncer

import (
	"time"

	"github.com/reqsercom/snippetsync/reconcile"
	"github.com/reqsercom/snippetsync/runstate"
	"github.com/reqsercom/snippetsync/sweep"
	"github.com/reqsercom/snippetsync/walker"
)

// Report counts what one run did.
type Report struct {
	RunID    string
	Root     string
	Started  time.Time
	Finished time.Time

	Dirs walker.Stats

	FilesParsed   int
	FilesBlank    int
	FilesFailed   int
	FilesUnmapped int

	KeysSeen     int
	KeysSkipped  int
	KeysUnmapped int

	Inserted    int
	Refreshed   int
	Unchanged   int
	Protected   int
	Settled     int
	WriteFailed int

	Sweep sweep.Result
}

func (r *Report) count(o reconcile.Outcome) {
	switch o {
	case reconcile.Inserted:
		r.Inserted++
	case reconcile.Refreshed:
		r.Refreshed++
	case reconcile.Protected:
		r.Protected++
	case reconcile.Settled:
		r.Settled++
	default:
		r.Unchanged++
	}
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Writes is the number of rows inserted or changed, placeholders included.
func (r Report) Writes() int { return r.Inserted + r.Refreshed + r.Sweep.Inserted }

// Failures is the number of isolated failures of any kind.
func (r Report) Failures() int {
	return r.Dirs.Failed + r.FilesFailed + r.WriteFailed + r.Sweep.Failed
}

// Counts flattens the report for the run state file.
func (r Report) Counts() map[string]int {
	return map[string]int{
		"dirs_visited":   r.Dirs.Visited,
		"dirs_excluded":  r.Dirs.Excluded,
		"dirs_failed":    r.Dirs.Failed,
		"files_parsed":   r.FilesParsed,
		"files_blank":    r.FilesBlank,
		"files_failed":   r.FilesFailed,
		"files_unmapped": r.FilesUnmapped,
		"keys_seen":      r.KeysSeen,
		"keys_skipped":   r.KeysSkipped,
		"keys_unmapped":  r.KeysUnmapped,
		"inserted":       r.Inserted,
		"refreshed":      r.Refreshed,
		"unchanged":      r.Unchanged,
		"protected":      r.Protected,
		"settled":        r.Settled,
		"write_failed":   r.WriteFailed,
		"sweep_inserted": r.Sweep.Inserted,
		"sweep_failed":   r.Sweep.Failed,
	}
}

// Run converts the report into a run state record. fatal may be nil.
func (r Report) Run(fatal error) runstate.Run {
	run := runstate.Run{
		ID:       r.RunID,
		Started:  r.Started,
		Finished: r.Finished,
		Root:     r.Root,
		Counts:   r.Counts(),
		Failures: r.Failures(),
	}
	if fatal != nil {
		run.Fatal = fatal.Error()
	}
	return run
}
