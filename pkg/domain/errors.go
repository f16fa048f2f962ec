package domain

import "fmt"

// ErrNotFound is returned when an entity id does not resolve.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrValidation is returned when a draft fails field validation.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrInsufficientStock is returned when a transplant or reservation request
// exceeds the quantity available on the batch it draws from.
type ErrInsufficientStock struct {
	BatchID   string
	Requested int
	Available int
}

func (e ErrInsufficientStock) Error() string {
	return fmt.Sprintf("batch %s: requested %d, available %d", e.BatchID, e.Requested, e.Available)
}

// ErrDuplicateIdentifier is returned on a batch number collision. The core
// service retries allocation once before surfacing it.
type ErrDuplicateIdentifier struct {
	Identifier string
}

func (e ErrDuplicateIdentifier) Error() string {
	return fmt.Sprintf("identifier %s already in use", e.Identifier)
}

// ErrConflict is returned when an update carries a stale version token.
type ErrConflict struct {
	Entity          EntityType
	ID              string
	ExpectedVersion int
	ActualVersion   int
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("%s %s: stale version %d (current %d)", e.Entity, e.ID, e.ExpectedVersion, e.ActualVersion)
}

// ErrStorage wraps an underlying read/write failure from a persistence
// backend.
type ErrStorage struct {
	Op  string
	Err error
}

func (e ErrStorage) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e ErrStorage) Unwrap() error { return e.Err }
