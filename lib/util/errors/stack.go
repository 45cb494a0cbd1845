// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package errors

import (
	"fmt"
	"path"
	"runtime"
	"strconv"
)

// stacktrace is a stack of program counters, captured by runtime.Callers.
type stacktrace []uintptr

func (s stacktrace) Format(st fmt.State, verb rune) {
	if verb != 'v' || !st.Flag('+') {
		return
	}
	frames := runtime.CallersFrames(s)
	for {
		frame, more := frames.Next()
		if frame.Function == "" && frame.File == "" {
			break
		}
		fmt.Fprintf(st, "\n%s\n\t%s:%s", frame.Function, frame.File, strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
}

// shortFile trims a caller's file path down to its last two path
// components for compact stack rendering.
func shortFile(file string) string {
	dir := path.Base(path.Dir(file))
	return path.Join(dir, path.Base(file))
}
