// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package collector

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the collector client. Use errors.Is to test.
var (
	// ErrBadResponse is a transport failure: no response was received.
	ErrBadResponse = errors.New("bad response")
	// ErrBadResponseCode is an unexpected HTTP status.
	ErrBadResponseCode = errors.New("bad response code")
	// ErrInvalidData is HTTP 422: the collector rejected the payload.
	ErrInvalidData = errors.New("invalid data")
	// ErrNotFound is HTTP 404.
	ErrNotFound = errors.New("not found")
	// ErrMissingParameter is a required client setting that was not given.
	ErrMissingParameter = errors.New("missing parameter")
)

// ResponseError describes a non-success response from the collector.
type ResponseError struct {
	StatusCode int
	Body       string
	Errors     []string
	kind       error
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("Response code %d returned", e.StatusCode)
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, ", ")
	}
	return msg
}

// Unwrap returns the error kind.
func (e *ResponseError) Unwrap() error {
	return e.kind
}

func transportError(err error) error {
	return fmt.Errorf("%w: Could not perform request because: %v", ErrBadResponse, err)
}

func missingParameter(name string) error {
	return fmt.Errorf("%w: `%s` is a required parameter", ErrMissingParameter, name)
}

// classify maps a status code to its error kind. Success codes return nil.
func classify(status int) error {
	switch status {
	case 200, 204:
		return nil
	case 422:
		return ErrInvalidData
	case 404:
		return ErrNotFound
	default:
		return ErrBadResponseCode
	}
}
