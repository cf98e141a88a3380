package saga

import (
	"fmt"

	"civicpulse/evidence"
	"civicpulse/models"
)

// PreconditionError means the submission never started: missing photo,
// owner, classification or location. Nothing was created.
type PreconditionError struct {
	Field string
	Err   error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission precondition %s: %v", e.Field, e.Err)
	}
	return "submission precondition: missing " + e.Field
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// StorageError is an evidence upload failure. Nothing durable exists.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "evidence upload failed: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// OracleError is a verification transport failure after all attempts.
type OracleError struct {
	Attempts int
	Err      error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("verification unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// RejectedError is a negative verdict. It is a decision, not a fault.
type RejectedError struct {
	IssueType  models.IssueType
	Label      string
	Confidence float64
}

func (e *RejectedError) Error() string {
	label := e.Label
	if label == "" {
		label = string(e.IssueType)
	}
	return "no " + label + " detected"
}

// PersistenceError means the report could not be recorded after all
// attempts. The evidence object is kept for operator recovery.
type PersistenceError struct {
	Attempts    int
	EvidenceKey evidence.Ref
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("report not recorded after %d attempt(s), evidence %s retained: %v",
		e.Attempts, e.EvidenceKey, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LedgerError means the report exists but its credit is still pending. The
// reconciler settles it later.
type LedgerError struct {
	ReportID string
	Err      error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("credit for report %s pending: %v", e.ReportID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
