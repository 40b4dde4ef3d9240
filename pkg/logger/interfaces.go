/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger is the structured logger injected into every hostwatch component.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return NewWriterLogger(io.Discard, zerolog.Disabled)
}

// NewWriterLogger returns a Logger writing JSON lines to w at the given level.
func NewWriterLogger(w io.Writer, level zerolog.Level) Logger {
	return &writerLogger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

type writerLogger struct {
	zl zerolog.Logger
}

func (w *writerLogger) Trace() *zerolog.Event { return w.zl.Trace() }
func (w *writerLogger) Debug() *zerolog.Event { return w.zl.Debug() }
func (w *writerLogger) Info() *zerolog.Event  { return w.zl.Info() }
func (w *writerLogger) Warn() *zerolog.Event  { return w.zl.Warn() }
func (w *writerLogger) Error() *zerolog.Event { return w.zl.Error() }
func (w *writerLogger) Fatal() *zerolog.Event { return w.zl.Fatal() }
func (w *writerLogger) Panic() *zerolog.Event { return w.zl.Panic() }
func (w *writerLogger) With() zerolog.Context { return w.zl.With() }
func (w *writerLogger) WithComponent(component string) zerolog.Logger {
	return w.zl.With().Str("component", component).Logger()
}
func (w *writerLogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	return w.zl.With().Fields(fields).Logger()
}
func (w *writerLogger) SetLevel(level zerolog.Level) { w.zl = w.zl.Level(level) }
func (w *writerLogger) SetDebug(debug bool) {
	if debug {
		w.SetLevel(zerolog.DebugLevel)
	} else {
		w.SetLevel(zerolog.InfoLevel)
	}
}
