/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package trace is the core's logging surface. It keeps the
// java.util.logging-flavored level names the teacher's call sites use
// (classloader.go: trace.Trace/trace.Error; the older instantiate.go/
// errors_test.go generation of this package used FINE/SEVERE/TRACE_INST
// constants) but sinks through github.com/sirupsen/logrus instead of
// hand-rolled fmt.Fprintf(os.Stderr, ...) calls, so every message
// carries a level, a timestamp, and is filterable the way the rest of
// the pack's services do it.
package trace

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the java.util.logging levels the original trace/log
// package in the teacher repo used at its call sites.
type Level int

const (
	SEVERE Level = iota
	WARNING
	INFO
	FINE
	TRACE_INST
)

var log = logrus.New()
var mu sync.Mutex
var currentLevel = INFO

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// Init (re)configures the sink; tests call this to get a clean logger.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	log = logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	currentLevel = INFO
	log.SetLevel(logrus.InfoLevel)
}

// SetLogLevel sets the minimum level that reaches the sink.
func SetLogLevel(l Level) error {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
	log.SetLevel(toLogrus(l))
	return nil
}

func toLogrus(l Level) logrus.Level {
	switch l {
	case SEVERE:
		return logrus.ErrorLevel
	case WARNING:
		return logrus.WarnLevel
	case INFO:
		return logrus.InfoLevel
	case FINE:
		return logrus.DebugLevel
	case TRACE_INST:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// Trace logs msg at FINE — the level classloader.go's trace.Trace calls
// use for "class X was loaded/format-checked" progress messages.
func Trace(msg string) { emit(FINE, msg) }

// Error logs msg at SEVERE — classloader.go's cfe() and every
// class-format-error path use this.
func Error(msg string) { emit(SEVERE, msg) }

// Warning logs msg at WARNING.
func Warning(msg string) { emit(WARNING, msg) }

// Info logs msg at INFO.
func Info(msg string) { emit(INFO, msg) }

// Log is the older call shape (jacobin/log.Log(msg, level)) preserved
// for call sites ported from instantiate.go/initializerBlock.go/
// errors_test.go; it always returns nil, matching the teacher's
// `_ = log.Log(...)`-discarded-error convention.
func Log(msg string, level Level) error {
	emit(level, msg)
	return nil
}

func emit(l Level, msg string) {
	entry := log.WithField("level_name", levelName(l))
	switch l {
	case SEVERE:
		entry.Error(msg)
	case WARNING:
		entry.Warn(msg)
	case INFO:
		entry.Info(msg)
	case FINE:
		entry.Debug(msg)
	case TRACE_INST:
		entry.Trace(msg)
	}
}

func levelName(l Level) string {
	switch l {
	case SEVERE:
		return "SEVERE"
	case WARNING:
		return "WARNING"
	case INFO:
		return "INFO"
	case FINE:
		return "FINE"
	case TRACE_INST:
		return "TRACE_INST"
	default:
		return "INFO"
	}
}
