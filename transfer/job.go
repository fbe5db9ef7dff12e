// Package transfer turns a selection of entries into an ordered sequence of
// byte transfers across backends and runs them on a single worker goroutine.
package transfer

import (
	"time"

	"github.com/iancoleman/strcase"

	"github.com/peak/s5nav/atomic"
	"github.com/peak/s5nav/storage"
)

// Panel is one side of the navigator: a backend and the location it shows.
type Panel struct {
	Backend storage.Backend
	Cwd     storage.Ref
}

// UnitKind is the kind of a selected entry.
type UnitKind int

const (
	// File is a single file or object.
	File UnitKind = iota
	// Directory is a local directory.
	Directory
	// ObjectPrefix is an object store "directory".
	ObjectPrefix
	// Bucket is a whole bucket.
	Bucket
)

var unitKindNames = [...]string{
	File:         "File",
	Directory:    "Directory",
	ObjectPrefix: "ObjectPrefix",
	Bucket:       "Bucket",
}

func (k UnitKind) String() string {
	if int(k) < len(unitKindNames) {
		return strcase.ToKebab(unitKindNames[k])
	}
	return "unknown"
}

// LeafFile is one concrete file to transfer.
type LeafFile struct {
	Source       storage.Ref
	RelativePath string
	Size         int64
	ModTime      *time.Time
}

// Unit is one selected entry together with all of its leaf files.
type Unit struct {
	Kind        UnitKind
	Root        storage.Ref
	DisplayName string
	Leaves      []LeafFile

	// Err is the planning error of a container unit. A unit that could not be
	// listed has no leaves and is never removed by a move.
	Err error
}

// IsContainer reports whether the unit is a directory, prefix or bucket.
func (u Unit) IsContainer() bool {
	return u.Kind != File
}

type sticky int

const (
	noneAsked sticky = iota
	overwriteAll
	versionAll
	skipAll
)

// Job is a planned transfer. Counters are written by the worker only; the
// cancel flag may be set from any goroutine.
type Job struct {
	Units      []Unit
	TotalBytes int64

	// PlanErr holds the listing errors of the units that could not be
	// expanded.
	PlanErr error

	source    Panel
	cancelled atomic.Bool
	started   atomic.Bool
	sticky    sticky
	progress  *Progress
}

// Source returns the panel the job was planned from.
func (j *Job) Source() Panel {
	return j.source
}

// TotalFiles returns the number of leaf files of the job.
func (j *Job) TotalFiles() int64 {
	var n int64
	for _, u := range j.Units {
		n += int64(len(u.Leaves))
	}
	return n
}

// Cancel stops the job before its next leaf. An in-flight transfer is not
// interrupted.
func (j *Job) Cancel() {
	j.cancelled.Set(true)
}

// Cancelled reports whether the job was cancelled.
func (j *Job) Cancelled() bool {
	return j.cancelled.Get()
}

// Progress returns the live counters of the job.
func (j *Job) Progress() *Progress {
	return j.progress
}
