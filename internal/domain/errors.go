// SPDX-License-Identifier: AGPL-3.0-or-later

package domain

import (
	"errors"
	"fmt"
)

// Kind classifies recoverable tracker errors. Every public operation reports
// failures through one of these kinds; none are swallowed and none retry.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindRunLocked         Kind = "run_locked"
	KindInvalidScope      Kind = "invalid_scope"
	KindForbidden         Kind = "forbidden"
	KindInvalidReference  Kind = "invalid_reference"
	KindValidation        Kind = "validation"
)

// Error is the tracker's typed error. Entity names the affected entity type
// (e.g. "run", "testcase_version") when known.
type Error struct {
	Kind   Kind
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on a bare kind sentinel produced by KindOnly.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && (other.Entity == "" || other.Entity == e.Entity)
}

// KindOnly returns a sentinel suitable as an errors.Is target.
func KindOnly(k Kind) error { return &Error{Kind: k} }

// KindOf extracts the Kind from err, or empty when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// NotFound reports a missing entity.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: entity + " not found"}
}

// Conflictf reports a uniqueness or state conflict.
func Conflictf(entity, format string, args ...any) error {
	return &Error{Kind: KindConflict, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionf reports a run state machine violation.
func InvalidTransitionf(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Entity: "run", Msg: fmt.Sprintf(format, args...)}
}

// RunLocked reports a mutation attempted against a locked run.
func RunLocked(runID string) error {
	return &Error{Kind: KindRunLocked, Entity: "run", Msg: fmt.Sprintf("run %s is locked", runID)}
}

// InvalidScope reports an attachment without an owner.
func InvalidScope(msg string) error {
	return &Error{Kind: KindInvalidScope, Entity: "attachment", Msg: msg}
}

// Forbidden reports an authorization failure for the named action.
func Forbidden(action string) error {
	return &Error{Kind: KindForbidden, Msg: "not allowed to " + action}
}

// InvalidReference reports a dangling reference to another entity.
func InvalidReference(entity, msg string) error {
	return &Error{Kind: KindInvalidReference, Entity: entity, Msg: msg}
}

// Validationf reports malformed caller input.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}
