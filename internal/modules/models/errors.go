package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dErrors "complyhub/pkg/domain-errors"
)

// ErrorKind discriminates module registry failures.
type ErrorKind string

const (
	// Catalog build failures. Fatal at startup.
	KindUnknownReference  ErrorKind = "unknown_reference"
	KindCyclicDependency  ErrorKind = "cyclic_dependency"
	KindInvalidDescriptor ErrorKind = "invalid_descriptor"

	// Runtime failures. Returned to the caller, never fatal.
	KindUnknownModule          ErrorKind = "unknown_module"
	KindMissingDependency      ErrorKind = "missing_dependency"
	KindDependentsStillEnabled ErrorKind = "dependents_still_enabled"
	KindModuleLocked           ErrorKind = "module_locked"
	KindPersistence            ErrorKind = "persistence_error"
)

// Fatal reports whether the kind aborts startup.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindUnknownReference, KindCyclicDependency, KindInvalidDescriptor:
		return true
	default:
		return false
	}
}

// ModuleError is returned by every registry operation that fails. Blocking
// lists the modules the caller must act on first (unmet dependencies, enabled
// dependents, unknown references or cycle members, depending on Kind).
type ModuleError struct {
	Kind     ErrorKind
	Module   ModuleType
	Blocking []ModuleType
	Detail   string
	Err      error
}

func (e *ModuleError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Module != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Module))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Blocking) > 0 {
		fmt.Fprintf(&b, " %v", e.Blocking)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// DomainCode maps the kind onto the transport-level code.
func (e *ModuleError) DomainCode() dErrors.Code {
	switch e.Kind {
	case KindUnknownModule:
		return dErrors.CodeNotFound
	case KindMissingDependency, KindDependentsStillEnabled, KindModuleLocked:
		return dErrors.CodeConflict
	case KindPersistence:
		if errors.Is(e.Err, context.DeadlineExceeded) {
			return dErrors.CodeTimeout
		}
		return dErrors.CodeInternal
	default:
		return dErrors.CodeInvariantViolation
	}
}

func (e *ModuleError) ErrorKind() string {
	return string(e.Kind)
}

// BlockingModules returns Blocking as strings for transport rendering.
func (e *ModuleError) BlockingModules() []string {
	out := make([]string, len(e.Blocking))
	for i, t := range e.Blocking {
		out[i] = string(t)
	}
	return out
}

func newError(kind ErrorKind, module ModuleType, blocking []ModuleType, detail string) *ModuleError {
	return &ModuleError{Kind: kind, Module: module, Blocking: blocking, Detail: detail}
}

func ErrUnknownReference(module ModuleType, unknown []ModuleType) *ModuleError {
	return newError(KindUnknownReference, module, unknown, "references modules missing from the catalog")
}

func ErrCyclicDependency(members []ModuleType) *ModuleError {
	return newError(KindCyclicDependency, "", members, "required dependencies form a cycle")
}

func ErrInvalidDescriptor(module ModuleType, detail string) *ModuleError {
	return newError(KindInvalidDescriptor, module, nil, detail)
}

func ErrUnknownModule(module ModuleType) *ModuleError {
	return newError(KindUnknownModule, module, nil, "module is not in the catalog")
}

func ErrMissingDependency(module ModuleType, unmet []ModuleType) *ModuleError {
	return newError(KindMissingDependency, module, unmet, "required dependencies are disabled")
}

func ErrDependentsStillEnabled(module ModuleType, dependents []ModuleType) *ModuleError {
	return newError(KindDependentsStillEnabled, module, dependents, "enabled modules still require it")
}

func ErrModuleLocked(module ModuleType) *ModuleError {
	return newError(KindModuleLocked, module, nil, "module cannot be disabled")
}

func ErrPersistence(module ModuleType, cause error) *ModuleError {
	e := newError(KindPersistence, module, nil, "state write failed")
	e.Err = cause
	return e
}

// KindOf returns the kind of the first ModuleError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// BlockingOf returns the blocking modules of the first ModuleError in err's chain.
func BlockingOf(err error) []ModuleType {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Blocking
	}
	return nil
}
