// Package errors derives stable error class names for metric tags and alert dedup keys.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"
)

// Classed is implemented by errors that name their own class.
type Classed interface {
	ErrorClass() string
}

// Context error classes.
const (
	ClassTimeout  = "timeout"
	ClassCanceled = "canceled"
	ClassUnknown  = "unknown"
)

// Classify returns a normalized error class suitable for tagging metrics and logs.
// The first Classed error in the chain wins; context errors map to fixed classes; otherwise
// the innermost concrete type is converted to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var classed Classed
	if goerrors.As(err, &classed) {
		if class := strings.TrimSpace(classed.ErrorClass()); class != "" {
			return class
		}
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	}

	return typeName(innermost(err))
}

// innermost follows the wrap chain, taking the first branch of multi-%w errors.
func innermost(err error) error {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return ClassUnknown
	}
	return name
}
