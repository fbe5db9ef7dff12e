package command

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/peak/s5nav/eventloop"
	"github.com/peak/s5nav/progressbar"
	"github.com/peak/s5nav/strutil"
	"github.com/peak/s5nav/transfer"
)

const dateFormat = "2006/01/02 15:04:05"

// terminalHandler answers the callbacks of a job on the terminal. It runs on
// the event loop goroutine only.
type terminalHandler struct {
	loop *eventloop.Loop
	in   *bufio.Reader
	out  io.Writer
	bar  progressbar.ProgressBar

	// preset answers every conflict without asking.
	preset *transfer.Decision
}

var _ transfer.Handler = (*terminalHandler)(nil)

func newTerminalHandler(in io.Reader, out io.Writer, bar progressbar.ProgressBar) *terminalHandler {
	return &terminalHandler{
		loop: eventloop.New(0),
		in:   bufio.NewReader(in),
		out:  out,
		bar:  bar,
	}
}

// decisionKeys maps prompt answers to decisions.
var decisionKeys = map[string]transfer.Decision{
	"o": transfer.Overwrite,
	"O": transfer.OverwriteAll,
	"s": transfer.Skip,
	"S": transfer.SkipAll,
	"n": transfer.NewVersion,
	"N": transfer.NewVersionAll,
	"c": transfer.Cancel,
}

// parseDecisionKey returns the decision of a prompt answer. Version keys are
// only accepted when the destination can keep both.
func parseDecisionKey(answer string, canVersion bool) (transfer.Decision, bool) {
	d, ok := decisionKeys[strings.TrimSpace(answer)]
	if !ok {
		return 0, false
	}
	if !canVersion && (d == transfer.NewVersion || d == transfer.NewVersionAll) {
		return 0, false
	}
	return d, true
}

func promptText(canVersion bool) string {
	if canVersion {
		return "[o]verwrite, [O]verwrite all, [s]kip, [S]kip all, [n]ew version, [N]ew version all, [c]ancel? "
	}
	return "[o]verwrite, [O]verwrite all, [s]kip, [S]kip all, [c]ancel? "
}

func (h *terminalHandler) OnConflict(req transfer.ConflictRequest) transfer.Decision {
	if h.preset != nil {
		return *h.preset
	}

	fmt.Fprintf(h.out, "%v already exists\n", req.Destination)
	fmt.Fprintf(h.out, "  existing: %v\n", describe(req.DestMeta.Size, req.DestMeta.ModTime != nil, func() string {
		return req.DestMeta.ModTime.Format(dateFormat)
	}))
	fmt.Fprintf(h.out, "  source:   %v\n", describe(req.SourceMeta.Size, req.SourceMeta.ModTime != nil, func() string {
		return req.SourceMeta.ModTime.Format(dateFormat)
	}))

	for {
		fmt.Fprint(h.out, promptText(req.CanVersion))

		answer, err := h.in.ReadString('\n')
		if d, ok := parseDecisionKey(answer, req.CanVersion); ok {
			return d
		}
		// no more input, nobody can answer
		if err != nil {
			fmt.Fprintln(h.out)
			return transfer.Cancel
		}
	}
}

func describe(size int64, hasTime bool, modTime func() string) string {
	s := strutil.HumanizeBytes(size)
	if hasTime {
		s += ", modified " + modTime()
	}
	return s
}

func (h *terminalHandler) OnProgress(s transfer.Snapshot) {
	h.bar.Update(s)
}

func (h *terminalHandler) OnComplete(transfer.Summary) {
	h.loop.Stop()
}
