// Package progressbar renders the progress of a transfer job on the terminal.
package progressbar

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/peak/s5nav/transfer"
)

// ProgressBar renders job snapshots. Update is called on the UI loop with
// every snapshot the engine delivers.
type ProgressBar interface {
	Start()
	Update(transfer.Snapshot)
	Finish()
}

type NoOpProgressBar struct{}

func (pb *NoOpProgressBar) Start() {}

func (pb *NoOpProgressBar) Update(transfer.Snapshot) {}

func (pb *NoOpProgressBar) Finish() {}

type CommandProgressBar struct {
	mu          sync.Mutex
	last        transfer.Snapshot
	progressbar *pb.ProgressBar
}

var _ ProgressBar = (*CommandProgressBar)(nil)

const progressbarTemplate = `{{percent . | green}} {{bar . " " "━" "━" "─" " " | green}} {{counters . | green}} {{speed . "(%s/s)" | red}} {{rtime . "%s left" | blue}} {{ string . "objects" | yellow}} {{ string . "current" }}`

// NewCommandProgressBar creates a bar writing to w.
func NewCommandProgressBar(w io.Writer) *CommandProgressBar {
	cp := &CommandProgressBar{}
	cp.progressbar = pb.New64(0)
	cp.progressbar.SetWriter(w)
	cp.progressbar.Set(pb.Bytes, true)
	cp.progressbar.Set(pb.SIBytesPrefix, true)
	cp.progressbar.SetWidth(128)
	cp.progressbar.SetTemplateString(progressbarTemplate)
	cp.progressbar.Set("objects", objects(transfer.Snapshot{}))
	return cp
}

func objects(s transfer.Snapshot) string {
	label := fmt.Sprintf("(%d/%d)", s.ProcessedFiles, s.TotalFiles)
	if s.Failed > 0 {
		label += fmt.Sprintf(" %d failed", s.Failed)
	}
	if s.Skipped > 0 {
		label += fmt.Sprintf(" %d skipped", s.Skipped)
	}
	return label
}

func (cp *CommandProgressBar) Start() {
	cp.progressbar.Start()
}

func (cp *CommandProgressBar) Finish() {
	cp.progressbar.Finish()
}

// Update sets the bar to the given snapshot. Snapshots older than the last
// rendered one are ignored.
func (cp *CommandProgressBar) Update(s transfer.Snapshot) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if s.ProcessedFiles < cp.last.ProcessedFiles || s.ProcessedBytes < cp.last.ProcessedBytes {
		return
	}
	cp.last = s

	cp.progressbar.SetTotal(s.TotalBytes)
	cp.progressbar.SetCurrent(s.ProcessedBytes)
	cp.progressbar.Set("objects", objects(s))
	cp.progressbar.Set("current", s.Current)
}
