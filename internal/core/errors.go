package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDMARCRecord indicates the domain publishes no DMARC policy
	ErrNoDMARCRecord = errors.New("no DMARC record")

	// ErrBudgetExhausted indicates the tenant's daily deep-analysis
	// allowance is used up
	ErrBudgetExhausted = errors.New("deep analysis budget exhausted")

	// ErrBaselineNotFound indicates no baseline exists for the key
	ErrBaselineNotFound = errors.New("baseline not found")
)

// InvalidDMARCRecordError is returned when a _dmarc TXT record exists
// but cannot be accepted: wrong version tag, missing mandatory policy,
// or out-of-range values. The evaluator folds it into a "no policy"
// outcome; it is never raised past the evaluator's public boundary.
type InvalidDMARCRecordError struct {
	Record string
	Reason string
}

func (e *InvalidDMARCRecordError) Error() string {
	return fmt.Sprintf("invalid DMARC record: %s", e.Reason)
}

// ParseError indicates a malformed raw message. Non-fatal: the pipeline
// produces a low-confidence verdict instead of aborting.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
