package result

import (
	"time"

	"go.uber.org/atomic"
)

// Run tracks one evaluation. It is handed to the noise map as its progress visitor.
type Run struct {
	ID        string
	StartedAt time.Time

	done       atomic.Int64
	total      atomic.Int64
	cancelled  atomic.Bool
	finished   atomic.Bool
	complete   atomic.Bool
	finishedAt atomic.Int64 // unix nanoseconds
	failure    atomic.String
}

// RunStatus is a snapshot of a run
type RunStatus struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CellsDone  int64      `json:"cells_done"`
	CellsTotal int64      `json:"cells_total"`
	Finished   bool       `json:"finished"`
	Complete   bool       `json:"complete"`
	Cancelled  bool       `json:"cancelled"`
	Error      string     `json:"error,omitempty"`
}

// Progress records the number of evaluated cells
func (r *Run) Progress(done, total int64) {
	r.done.Store(done)
	r.total.Store(total)
}

// IsCancelled reports whether Cancel was called
func (r *Run) IsCancelled() bool {
	return r.cancelled.Load()
}

// Cancel asks the evaluation to stop before its next cell
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Fail closes a run that stopped on an error
func (r *Run) Fail(err error) {
	r.failure.Store(err.Error())
	r.finish(false)
}

func (r *Run) finish(complete bool) {
	r.complete.Store(complete)
	r.finishedAt.Store(time.Now().UnixNano())
	r.finished.Store(true)
}

// Status returns a snapshot of the run
func (r *Run) Status() RunStatus {
	st := RunStatus{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		CellsDone:  r.done.Load(),
		CellsTotal: r.total.Load(),
		Finished:   r.finished.Load(),
		Complete:   r.complete.Load(),
		Cancelled:  r.cancelled.Load(),
		Error:      r.failure.Load(),
	}
	if st.Finished {
		t := time.Unix(0, r.finishedAt.Load())
		st.FinishedAt = &t
	}
	return st
}
