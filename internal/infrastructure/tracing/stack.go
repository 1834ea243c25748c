package tracing

import (
	"fmt"
	"runtime"
	"strings"
)

// MaxStackFrames caps how many frames a StackTrace keeps.
const MaxStackFrames = 64

// Frame is one call site.
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// StackTrace is a captured call stack, innermost frame first.
type StackTrace struct {
	Frames        []Frame `json:"frames"`
	DroppedFrames int     `json:"dropped_frames,omitempty"`
}

// IsEmpty reports whether no frames were captured
func (st StackTrace) IsEmpty() bool {
	return len(st.Frames) == 0
}

// String renders one frame per line
func (st StackTrace) String() string {
	var sb strings.Builder
	for _, f := range st.Frames {
		fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	if st.DroppedFrames > 0 {
		fmt.Fprintf(&sb, "... %d frames dropped\n", st.DroppedFrames)
	}
	return sb.String()
}

// CaptureStackTrace records the caller's stack. skip 0 starts at the caller
// of CaptureStackTrace.
func CaptureStackTrace(skip int) StackTrace {
	pcs := make([]uintptr, MaxStackFrames+32)
	n := runtime.Callers(skip+2, pcs)
	return framesFrom(pcs[:n], false)
}

// StackTraceFromPanic records the stack from inside a deferred recover.
// Frames belonging to the runtime's panic machinery are dropped so the
// trace starts at the panicking function.
func StackTraceFromPanic() StackTrace {
	pcs := make([]uintptr, MaxStackFrames+32)
	n := runtime.Callers(2, pcs)
	return framesFrom(pcs[:n], true)
}

func framesFrom(pcs []uintptr, afterPanic bool) StackTrace {
	var st StackTrace
	frames := runtime.CallersFrames(pcs)
	seenPanic := !afterPanic
	for {
		f, more := frames.Next()
		if !seenPanic {
			if f.Function == "runtime.gopanic" || strings.HasPrefix(f.Function, "runtime.panic") {
				seenPanic = true
			}
			if !more {
				break
			}
			continue
		}
		if !strings.HasPrefix(f.Function, "runtime.") {
			if len(st.Frames) < MaxStackFrames {
				st.Frames = append(st.Frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
			} else {
				st.DroppedFrames++
			}
		}
		if !more {
			break
		}
	}
	// Not called from a panicking goroutine; keep what the plain walk sees.
	if afterPanic && !seenPanic {
		return framesFrom(pcs, false)
	}
	return st
}
