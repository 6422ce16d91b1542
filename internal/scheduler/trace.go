package scheduler

import (
	"errors"
	"strings"
)

// TraceError is the failure of a rule chain: the root cause plus the rule
// IDs that were awaiting it, outermost requester first. Failures are
// memoized per node, so each frame is pushed exactly once no matter how
// many requesters observe the failure.
type TraceError struct {
	// Frames lists rule IDs from the top-level requester down to the rule
	// that originated the failure.
	Frames []string
	// Err is the originating failure.
	Err error
}

// Error renders the trace the way the CLI reports a failed query.
func (e *TraceError) Error() string {
	var b strings.Builder
	b.WriteString("engine trace:\n")
	for _, f := range e.Frames {
		b.WriteString("  in ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteString("cause: ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap exposes the root cause to errors.Is and errors.As.
func (e *TraceError) Unwrap() error {
	return e.Err
}

// pushFrame records that ruleID was awaiting err. An existing trace grows
// by one outer frame; any other error starts a fresh single-frame trace.
func pushFrame(err error, ruleID string) error {
	var te *TraceError
	if errors.As(err, &te) {
		frames := make([]string, 0, len(te.Frames)+1)
		frames = append(frames, ruleID)
		frames = append(frames, te.Frames...)
		return &TraceError{Frames: frames, Err: te.Err}
	}
	return &TraceError{Frames: []string{ruleID}, Err: err}
}
