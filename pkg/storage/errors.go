package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when a create-if-absent write finds an existing record.
var ErrAlreadyExists = errors.New("record already exists")

// ErrVersionConflict is returned when an optimistic update loses a race with another writer.
var ErrVersionConflict = errors.New("version conflict")

// ErrInvalidTransition is returned when a transaction is not in a status that allows the requested change.
var ErrInvalidTransition = errors.New("transaction not in a state that allows this transition")
