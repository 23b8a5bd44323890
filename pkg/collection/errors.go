package collection

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors. Structured errors below unwrap to these, so callers can
// match with errors.Is and inspect details with errors.As.
var (
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrInvalidKey        = errors.New("invalid key")
	ErrInvalidDescriptor = errors.New("invalid element type descriptor")
	ErrReconciled        = errors.New("collection already reconciled")
)

// TypeMismatchError reports an item that does not conform to the element
// type of a container.
type TypeMismatchError struct {
	Key      Key          // Position or key the item was offered at.
	Expected reflect.Type // Element type descriptor of the container.
	Actual   reflect.Type // Dynamic type of the item; nil for a nil interface.
}

func (e *TypeMismatchError) Error() string {
	actual := "nil"
	if e.Actual != nil {
		actual = e.Actual.String()
	}
	return fmt.Sprintf("item %s must be an instance of %s, got %s", e.Key, e.Expected, actual)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// InvalidKeyError reports a key that is neither a string nor a non-negative
// integer.
type InvalidKeyError struct {
	Key any
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %v (%T)", e.Key, e.Key)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }
