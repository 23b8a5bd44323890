package types

import "errors"

// Record store errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidID   = errors.New("invalid record ID")
	ErrInvalidData = errors.New("invalid record data")
	ErrInvalidName = errors.New("invalid name")
	ErrInvalidKind = errors.New("invalid kind")
)

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)

// Migration errors.
var (
	ErrMigrationName   = errors.New("invalid migration name")
	ErrMigrationExists = errors.New("migration already exists")
)

// ErrDigestMismatch is returned when an export file does not match the
// digest it is checked against.
var ErrDigestMismatch = errors.New("file digest mismatch")
