// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/stalkfish-go/internal/logpipe"
	"github.com/olegiv/stalkfish-go/internal/model"
)

// Report is one captured error or message.
type Report struct {
	ExceptionClass  string
	Message         string
	OccurredAt      time.Time
	Stacktrace      Stacktrace
	Runtime         logpipe.Runtime
	User            *model.Actor
	ApplicationPath string

	trackingUUID     string
	context          ContextSource
	exceptionContext map[string]any
	userContext      map[string]any
}

func newReport(class, message string, st Stacktrace, source ContextSource, at time.Time) *Report {
	return &Report{
		ExceptionClass: class,
		Message:        message,
		OccurredAt:     at,
		Stacktrace:     st,
		trackingUUID:   uuid.NewString(),
		context:        source,
	}
}

// NewErrorReport builds a report for err with the stack of its caller.
func NewErrorReport(err error, source ContextSource, at time.Time) *Report {
	r := newReport(ClassOf(err), err.Error(), CaptureStacktrace(1), source, at)
	var cp ContextProvider
	if errors.As(err, &cp) {
		r.exceptionContext = cp.TrackerContext()
	}
	return r
}

// NewMessageReport builds a report for a log message; the level becomes the
// exception class.
func NewMessageReport(message, level string, source ContextSource, at time.Time) *Report {
	return newReport(level, message, CaptureStacktrace(1), source, at)
}

// TrackingUUID returns the identifier generated when the report was built.
func (r *Report) TrackingUUID() string {
	return r.trackingUUID
}

// Group merges properties into the named user context group.
func (r *Report) Group(name string, properties map[string]any) *Report {
	if r.userContext == nil {
		r.userContext = map[string]any{}
	}
	group, _ := r.userContext[name].(map[string]any)
	r.userContext[name] = mergeDistinct(group, properties)
	return r
}

// Context sets one key in the "context" group.
func (r *Report) Context(key string, value any) *Report {
	return r.Group("context", map[string]any{key: value})
}

// AllContext merges the detected, error-provided and user-provided context
// in that order.
func (r *Report) AllContext() map[string]any {
	var merged map[string]any
	if r.context != nil {
		merged = r.context.Map()
	}
	merged = mergeDistinct(merged, r.exceptionContext)
	return mergeDistinct(merged, r.userContext)
}

// Payload returns the wire form of the report.
func (r *Report) Payload() map[string]any {
	user := map[string]any{}
	if r.User != nil && r.User.Initiator() == model.InitiatorUser {
		user = map[string]any{
			"id":           r.User.ID,
			"username":     r.User.Username,
			"display_name": r.User.DisplayName,
			"avatar":       r.User.AvatarURL,
			"role":         r.User.Role,
		}
	}
	return map[string]any{
		"exception_class":  r.ExceptionClass,
		"occurred_at":      r.OccurredAt.Unix(),
		"message":          r.Message,
		"stacktrace":       r.Stacktrace.Payload(),
		"request":          r.AllContext(),
		"runtime":          r.Runtime.Meta(),
		"user":             user,
		"application_path": r.ApplicationPath,
		"tracking_uuid":    r.trackingUUID,
	}
}

// ClassOf names the type of err. fmt wrappers are looked through so the
// class is that of the wrapped error.
func ClassOf(err error) string {
	for {
		switch err.(type) {
		case interface{ Unwrap() error }:
			name := fmt.Sprintf("%T", err)
			if name != "*fmt.wrapError" {
				return name
			}
			next := errors.Unwrap(err)
			if next == nil {
				return name
			}
			err = next
		default:
			return fmt.Sprintf("%T", err)
		}
	}
}

// PanicError is a recovered panic value.
type PanicError struct {
	Value any
	Stack Stacktrace
}

func (p *PanicError) Error() string {
	if err, ok := p.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.Value)
}

// Class names the type of the panic value.
func (p *PanicError) Class() string {
	if err, ok := p.Value.(error); ok {
		return ClassOf(err)
	}
	return fmt.Sprintf("%T", p.Value)
}
