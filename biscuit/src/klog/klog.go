// Package klog is the kernel's leveled logger. Grounded on the split
// gopher-os draws between its allocation-free `kfmt/early` formatter (used
// before the heap/VFS exist) and ordinary console output once the system is
// up, and on Biscuit's own habit of logging straight to the console via
// bare fmt.Printf rather than pulling a structured-logging library into
// ring-0 code.
//
// No third-party structured-logging library (zap/zerolog/logrus) is wired
// in here: none of the retrieved example kernels put a heap-allocating
// logger inside freestanding code, and a log call reachable from an
// interrupt handler must not allocate.
package klog

import (
	"fmt"

	"sbi"
)

// Level enumerates klog's severities.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelPanic
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelPanic:
		return "PANIC"
	default:
		return "?"
	}
}

// Sink, when non-nil, receives formatted Infof/Warnf output in place of
// Early. Nothing in the kernel sets it, so all klog output goes through
// Early.
var Sink func(s string)

// Early writes raw bytes straight to the UART via sbi.PutChar, bypassing
// any buffering layer. Safe to call before the VFS/FD layer exists, and
// used unconditionally for LevelPanic so a kernel halt is never lost to a
// wedged console driver.
func Early(s string) {
	for i := 0; i < len(s); i++ {
		sbi.PutChar(s[i])
	}
}

func emit(lvl Level, format string, args ...interface{}) string {
	msg := fmt.Sprintf("["+lvl.String()+"] "+format+"\n", args...)
	if Sink != nil && lvl != LevelPanic {
		Sink(msg)
	} else {
		Early(msg)
	}
	return msg
}

// Infof logs an informational message.
func Infof(format string, args ...interface{}) {
	emit(LevelInfo, format, args...)
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	emit(LevelWarn, format, args...)
}

// Panicf logs an unrecoverable condition and halts the hart: a
// programmer-error is handled by halting with a diagnostic, never by
// propagating it.
func Panicf(format string, args ...interface{}) {
	msg := emit(LevelPanic, format, args...)
	panic(msg)
}
