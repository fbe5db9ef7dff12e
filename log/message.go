package log

import (
	"fmt"

	"github.com/peak/s5nav/storage"
	"github.com/peak/s5nav/strutil"
)

// Message is an interface to print structured logs.
type Message interface {
	fmt.Stringer
	JSON() string
}

// InfoMessage is a generic message structure for successful operations.
type InfoMessage struct {
	Operation   string       `json:"operation"`
	Success     bool         `json:"success"`
	Source      *storage.Ref `json:"source"`
	Destination *storage.Ref `json:"destination,omitempty"`
	Size        int64        `json:"size,omitempty"`
}

// String is the string representation of InfoMessage.
func (i InfoMessage) String() string {
	if i.Destination == nil {
		return fmt.Sprintf("%v %v", i.Operation, i.Source)
	}
	return fmt.Sprintf("%v %v %v", i.Operation, i.Source, i.Destination)
}

// JSON is the JSON representation of InfoMessage.
func (i InfoMessage) JSON() string {
	i.Success = true
	return strutil.JSON(i)
}

// ErrorMessage is a generic message structure for unsuccessful operations.
type ErrorMessage struct {
	Operation string `json:"operation,omitempty"`
	Command   string `json:"command,omitempty"`
	Err       string `json:"error"`
}

// String is the string representation of ErrorMessage.
func (e ErrorMessage) String() string {
	if e.Command == "" {
		return e.Err
	}
	return fmt.Sprintf("%q: %v", e.Command, e.Err)
}

// JSON is the JSON representation of ErrorMessage.
func (e ErrorMessage) JSON() string {
	return strutil.JSON(e)
}

// WarningMessage is a generic message structure for skipped operations.
type WarningMessage struct {
	Operation string `json:"operation,omitempty"`
	Command   string `json:"job,omitempty"`
	Err       string `json:"error"`
}

// String is the string representation of WarningMessage.
func (w WarningMessage) String() string {
	if w.Command == "" {
		return w.Err
	}
	return fmt.Sprintf("%q (%v)", w.Command, w.Err)
}

// JSON is the JSON representation of WarningMessage.
func (w WarningMessage) JSON() string {
	return strutil.JSON(w)
}

// DebugMessage is a generic message structure for debugging logs.
type DebugMessage struct {
	Content string `json:"content"`
}

// String is the string representation of DebugMessage.
func (d DebugMessage) String() string {
	return d.Content
}

// JSON is the JSON representation of DebugMessage.
func (d DebugMessage) JSON() string {
	return strutil.JSON(d)
}

// SummaryMessage reports the final counters of a job.
type SummaryMessage struct {
	Operation  string  `json:"operation"`
	Succeeded  int64   `json:"succeeded"`
	Failed     int64   `json:"failed"`
	Skipped    int64   `json:"skipped"`
	Bytes      int64   `json:"bytes"`
	Throughput float64 `json:"throughput"`
	Cancelled  bool    `json:"cancelled,omitempty"`
}

// String is the string representation of SummaryMessage.
func (s SummaryMessage) String() string {
	msg := fmt.Sprintf("%d succeeded, %d failed, %s, %s",
		s.Succeeded, s.Failed, strutil.HumanizeBytes(s.Bytes), strutil.HumanizeRate(s.Throughput))
	if s.Skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped)", s.Skipped)
	}
	if s.Cancelled {
		msg += " (cancelled)"
	}
	return msg
}

// JSON is the JSON representation of SummaryMessage.
func (s SummaryMessage) JSON() string {
	return strutil.JSON(s)
}

// Debugf is the helper function to log debug messages.
func Debugf(format string, args ...interface{}) {
	content := fmt.Sprintf(format, args...)
	msg := DebugMessage{Content: content}
	Debug(msg)
}
