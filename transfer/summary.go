package transfer

import (
	"time"

	"github.com/peak/s5nav/log"
)

// Summary is the final report of a job.
type Summary struct {
	Operation string

	Succeeded int64
	Failed    int64
	Skipped   int64
	Bytes     int64

	Elapsed    time.Duration
	Throughput float64
	Cancelled  bool

	// Err holds the failed leaves, CleanupErr the sources a move could not
	// delete and PlanErr the containers that could not be listed.
	Err        error
	CleanupErr error
	PlanErr    error
}

// Message returns the log message of the summary.
func (s Summary) Message() log.SummaryMessage {
	return log.SummaryMessage{
		Operation:  s.Operation,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Bytes:      s.Bytes,
		Throughput: s.Throughput,
		Cancelled:  s.Cancelled,
	}
}

// String returns "N succeeded, M failed, bytes, throughput".
func (s Summary) String() string {
	return s.Message().String()
}

func newSummary(op string, job *Job) Summary {
	snap := job.progress.Snapshot()
	return Summary{
		Operation:  op,
		Succeeded:  snap.Succeeded,
		Failed:     snap.Failed,
		Skipped:    snap.Skipped,
		Bytes:      snap.ProcessedBytes,
		Elapsed:    snap.Elapsed,
		Throughput: snap.Throughput,
		Cancelled:  job.Cancelled(),
		PlanErr:    job.PlanErr,
	}
}
