// Package store provides persistence for deployment records.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrNotFound    = errors.New("deployment not found")
	ErrDuplicateID = errors.New("deployment id already exists")

	ErrConnectionFailed = errors.New("database connection failed")
	ErrMigrationFailed  = errors.New("database migration failed")
	ErrTxFailed         = errors.New("transaction failed")

	// ErrInvalidData means a persisted status could not be parsed.
	ErrInvalidData = errors.New("invalid data format")
)

// StoreError records which operation failed and, when known, on which
// deployment.
type StoreError struct {
	Op      string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s deployment %s: %s", e.Op, e.ID, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError. id may be empty for operations not
// scoped to one deployment.
func NewStoreError(op, id, message string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Message: message, Err: err}
}
