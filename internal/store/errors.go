package store

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge = errors.New("catalog payload too large")
	ErrEmptyCatalog    = errors.New("catalog contains no routes")
	ErrNotLoaded       = errors.New("catalog not loaded")
	ErrLockUnavailable = errors.New("catalog lock unavailable")
	ErrValidation      = errors.New("catalog validation failed")
)

// ParseError reports a payload that is not a well-formed catalog document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse catalog: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError names the first field that broke a catalog constraint.
// RouteID is empty for catalog-level violations.
type ValidationError struct {
	RouteID string
	Field   string
	Tag     string
	Limit   string
}

func (e *ValidationError) Error() string {
	if e.RouteID == "" {
		return fmt.Sprintf("catalog validation failed: field %q violates %s=%s", e.Field, e.Tag, e.Limit)
	}
	return fmt.Sprintf("catalog validation failed: route %q field %q violates %s=%s", e.RouteID, e.Field, e.Tag, e.Limit)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
