// TotemWatch - Protocol-Level Totem Automation Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/totemwatch

package pipeline

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/tomtom215/totemwatch/internal/logging"
)

// wmLogger adapts the process zerolog logger to watermill.LoggerAdapter so
// the in-process bus logs through the same sink as everything else.
type wmLogger struct {
	fields watermill.LogFields
}

// newWatermillLogger returns a watermill logger backed by the global logger.
func newWatermillLogger() watermill.LoggerAdapter {
	return &wmLogger{}
}

func (l *wmLogger) event(ev *zerolog.Event, msg string, err error, fields watermill.LogFields) {
	if err != nil {
		ev = ev.Err(err)
	}
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error(), msg, err, fields)
}

func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Info(), msg, nil, fields)
}

func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, nil, fields)
}

func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, nil, fields)
}

func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &wmLogger{fields: merged}
}
