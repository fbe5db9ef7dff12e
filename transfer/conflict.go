package transfer

import (
	"context"
	"fmt"

	"github.com/iancoleman/strcase"

	"github.com/peak/s5nav/storage"
)

// Decision is the answer to a ConflictRequest.
type Decision int

const (
	Overwrite Decision = iota
	OverwriteAll
	Skip
	SkipAll
	NewVersion
	NewVersionAll
	Cancel
)

var decisionNames = [...]string{
	Overwrite:     "Overwrite",
	OverwriteAll:  "OverwriteAll",
	Skip:          "Skip",
	SkipAll:       "SkipAll",
	NewVersion:    "NewVersion",
	NewVersionAll: "NewVersionAll",
	Cancel:        "Cancel",
}

// String returns the string representation of Decision.
func (d Decision) String() string {
	if d >= 0 && int(d) < len(decisionNames) {
		return strcase.ToKebab(decisionNames[d])
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// ParseDecision parses the kebab-case name of a decision.
func ParseDecision(s string) (Decision, error) {
	for d := range decisionNames {
		if Decision(d).String() == s {
			return Decision(d), nil
		}
	}
	return 0, fmt.Errorf("unknown decision %q", s)
}

// ConflictRequest asks the UI what to do with a leaf whose destination
// already exists.
type ConflictRequest struct {
	DisplayName string
	Source      storage.Ref
	Destination storage.Ref
	SourceMeta  storage.Metadata
	DestMeta    storage.Metadata

	// CanVersion reports whether NewVersion keeps the existing destination:
	// the destination is a versioned bucket or a local directory.
	CanVersion bool
}

// Handler receives the callbacks of a job. Every method is called on the UI
// loop goroutine.
type Handler interface {
	// OnConflict must return a decision; the worker is blocked until it does.
	OnConflict(ConflictRequest) Decision
	OnProgress(Snapshot)
	OnComplete(Summary)
}

// Resolver hands conflicts from the worker to the UI loop. There is at most
// one outstanding request: the worker blocks until the decision is written
// into slot.
type Resolver struct {
	loop    Loop
	handler Handler
	slot    chan Decision
}

func newResolver(loop Loop, handler Handler) *Resolver {
	return &Resolver{
		loop:    loop,
		handler: handler,
		slot:    make(chan Decision, 1),
	}
}

// Resolve returns the decision for req. Sticky decisions of the job answer
// without asking. "All" decisions are recorded on the job and returned as
// their single-item counterpart.
func (r *Resolver) Resolve(ctx context.Context, job *Job, req ConflictRequest) Decision {
	switch job.sticky {
	case overwriteAll:
		return Overwrite
	case versionAll:
		return NewVersion
	case skipAll:
		return Skip
	}

	decision := r.ask(ctx, req)
	switch decision {
	case OverwriteAll:
		job.sticky = overwriteAll
		return Overwrite
	case NewVersionAll:
		job.sticky = versionAll
		return NewVersion
	case SkipAll:
		job.sticky = skipAll
		return Skip
	case NewVersion:
		return NewVersion
	case Overwrite, Skip:
		return decision
	default:
		job.Cancel()
		return Cancel
	}
}

// ask blocks until the handler answered on the UI loop. A stopped loop or a
// done context answers Cancel.
func (r *Resolver) ask(ctx context.Context, req ConflictRequest) Decision {
	posted := r.loop.Post(func() {
		r.slot <- r.handler.OnConflict(req)
	})
	if !posted {
		return Cancel
	}

	select {
	case d := <-r.slot:
		return d
	case <-ctx.Done():
		return Cancel
	case <-r.loop.Done():
		return Cancel
	}
}
