// Package errchain wraps errors with a human-readable message and the source
// location where the wrap happened, and renders the resulting causal chain
// either condensed (default) or in full (debug).
package errchain

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// DebugHint is appended to condensed renderings.
const DebugHint = "Add command line argument -d for a full traceback or one or more -v for higher verbosity."

// Frame is one (message, location) pair in a chain.
type Frame struct {
	Message  string
	File     string
	Line     int
	Function string
}

// Location formats the frame's origin as "file line N".
func (f Frame) Location() string {
	if f.File == "" {
		return ""
	}
	return fmt.Sprintf("%s line %d", filepath.Base(f.File), f.Line)
}

// Error is a wrapped error carrying the location it was wrapped at.
type Error struct {
	frame Frame
	cause error
}

// Wrap annotates err with msg and the caller's location. Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{frame: caller(msg, 2), cause: err}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{frame: caller(fmt.Sprintf(format, args...), 2), cause: err}
}

func caller(msg string, skip int) Frame {
	f := Frame{Message: msg}
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return f
	}
	f.File = file
	f.Line = line
	if fn := runtime.FuncForPC(pc); fn != nil {
		f.Function = fn.Name()
	}
	return f
}

// Error returns the top message followed by the causes, colon separated.
func (e *Error) Error() string {
	return e.frame.Message + ": " + e.cause.Error()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Frame returns this wrap's frame.
func (e *Error) Frame() Frame {
	return e.frame
}

// Frames flattens the chain, outermost first. The first error that is not
// an *Error ends the walk with one frame without location; its message
// already includes anything it wraps.
func Frames(err error) []Frame {
	var frames []Frame
	for err != nil {
		e, ok := err.(*Error)
		if !ok {
			frames = append(frames, Frame{Message: err.Error()})
			break
		}
		frames = append(frames, e.frame)
		err = e.cause
	}
	return frames
}

// Messages returns the message of every frame, outermost first.
func Messages(err error) []string {
	frames := Frames(err)
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Message
	}
	return out
}

// Render formats err for the operator. Condensed form:
//
//	<top>. Error details:
//	- <cause> (<location>).
//	- <cause>
//
// followed by DebugHint. In debug mode every frame is printed with its
// function and location, then the innermost error with %+v.
func Render(err error, debug bool) string {
	if err == nil {
		return ""
	}
	frames := Frames(err)
	var b strings.Builder

	if debug {
		for i, f := range frames {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f.Message)
			if f.File != "" {
				fmt.Fprintf(&b, "   at %s (%s:%d)\n", f.Function, f.File, f.Line)
			}
		}
		var root error = err
		for {
			next := errors.Unwrap(root)
			if next == nil {
				break
			}
			root = next
		}
		fmt.Fprintf(&b, "cause: %+v\n", root)
		return b.String()
	}

	if len(frames) == 1 {
		b.WriteString(frames[0].Message)
		b.WriteString("\n\n")
		b.WriteString(DebugHint)
		return b.String()
	}

	b.WriteString(frames[0].Message)
	b.WriteString(". Error details:")
	last := len(frames) - 1
	for i := 1; i <= last; i++ {
		b.WriteString("\n- ")
		b.WriteString(frames[i].Message)
		// the root cause is annotated with the place it was first wrapped
		if i == last {
			if loc := frames[i-1].Location(); loc != "" {
				fmt.Fprintf(&b, " (%s).", loc)
			}
		}
	}
	b.WriteString("\n\n")
	b.WriteString(DebugHint)
	return b.String()
}
