package engine

import (
	"errors"
	"fmt"
)

// ReasonCode classifies why a source row was rejected.
type ReasonCode string

const (
	MissingField  ReasonCode = "MissingField"
	NotNumeric    ReasonCode = "NotNumeric"
	NegativeValue ReasonCode = "NegativeValue"
)

var (
	ErrNotLoaded        = errors.New("dataset not loaded")
	ErrDataIntegrity    = errors.New("dataset integrity")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// DataIntegrityError is returned by a reload that produced no usable records.
// The previously loaded snapshot stays current.
type DataIntegrityError struct {
	Source   string
	Rejected int
	Reasons  map[ReasonCode]int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("dataset integrity: %s produced 0 accepted rows (%d rejected)", e.Source, e.Rejected)
}

func (e *DataIntegrityError) Is(target error) bool { return target == ErrDataIntegrity }

// NotLoadedError is returned when no reload has ever succeeded.
type NotLoadedError struct{}

func (e *NotLoadedError) Error() string { return ErrNotLoaded.Error() }

func (e *NotLoadedError) Is(target error) bool { return target == ErrNotLoaded }

// InvalidParameterError names the request field whose value is outside its enumeration.
type InvalidParameterError struct {
	Field string
	Value string
}

func (e *InvalidParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid parameter %s", e.Field)
	}
	return fmt.Sprintf("invalid parameter %s: %q", e.Field, e.Value)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }
