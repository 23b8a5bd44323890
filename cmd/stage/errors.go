package main

import (
	"errors"
	"strings"

	"github.com/mesh-intelligence/stage/pkg/collection"
	"github.com/mesh-intelligence/stage/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// userError marks a failure caused by the invocation rather than the system.
type userError struct {
	err error
}

func (e *userError) Error() string { return e.err.Error() }
func (e *userError) Unwrap() error { return e.err }

func userErr(err error) error {
	if err == nil {
		return nil
	}
	return &userError{err: err}
}

// userErrors are reported with exitUserError wherever they surface.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrInvalidName,
	types.ErrInvalidKind,
	types.ErrMigrationName,
	types.ErrMigrationExists,
	types.ErrDigestMismatch,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrLogLevelUnknown,
	types.ErrLogFormatUnknown,
	collection.ErrTypeMismatch,
	collection.ErrInvalidKey,
}

func exitCode(err error) int {
	var ue *userError
	if errors.As(err, &ue) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	// cobra reports these as plain errors.
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "required flag") {
		return exitUserError
	}
	return exitSysError
}
