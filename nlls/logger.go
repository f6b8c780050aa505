// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"fmt"
	"io"
	"time"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the exit summary
	LogLast LogLevel = 0
	// LogEval print also cost and step norm every `level` iterations for any (0 < level < 99)
	LogEval LogLevel = 1
	// LogTrace print details of every trial step including rejected ones
	LogTrace LogLevel = 99
	// LogVerbose print also the estimate and increment vectors (level > 100)
	LogVerbose LogLevel = 101
)

// Logger handles logging output for the optimizer.
// Note the writers must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for the per-iteration table.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

func (l *Logger) vec(name string, v []float64) {
	l.log("\n %s =", name)
	for i, x := range v {
		l.log(" %.2e", x)
		if (i+1)%6 == 0 {
			l.log("\n     ")
		}
	}
	l.log("\n")
}

func formatDuration(d time.Duration) string {
	switch ns := d.Nanoseconds(); {
	case ns >= 1e9: // Convert to seconds
		return fmt.Sprintf("%.2f s", float64(ns)/1e9)
	case ns >= 1e6: // Convert to milliseconds
		return fmt.Sprintf("%.2f ms", float64(ns)/1e6)
	case ns >= 1e3: // Convert to microseconds
		return fmt.Sprintf("%.2f µs", float64(ns)/1e3)
	default: // Keep in nanoseconds
		return fmt.Sprintf("%.2f ns", float64(ns))
	}
}
