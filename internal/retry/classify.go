// Package retry classifies ticketing failures and schedules bounded, backed-off retries.
package retry

import (
	"context"
	"errors"

	"github.com/spec-kit/alertbridge/internal/lock"
	"github.com/spec-kit/alertbridge/internal/resolver"
	"github.com/spec-kit/alertbridge/internal/ticketing"
)

// Class is the retry treatment of an error.
type Class int

const (
	ClassNone Class = iota
	ClassTransient
	ClassPermanent
	// ClassTerminal ends the event without a retry and without an adapter error.
	ClassTerminal
	ClassUnexpected
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassTerminal:
		return "terminal"
	}
	return "unexpected"
}

// Classify maps err onto a retry class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var resErr *resolver.ResolutionError
	switch {
	case ticketing.IsPermanent(err):
		return ClassPermanent
	case errors.As(err, &resErr):
		return ClassTerminal
	case ticketing.IsTransient(err),
		errors.Is(err, lock.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}
	return ClassUnexpected
}
