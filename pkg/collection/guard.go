package collection

import (
	"fmt"
	"reflect"
)

// guard enforces the element type of a container. An item conforms when its
// dynamic type is assignable to elem, which admits implementers when elem is
// an interface type.
type guard struct {
	elem reflect.Type
}

// newGuard returns a guard for elem. The descriptor must be assignable to T,
// otherwise no item could ever be stored.
func newGuard[T any](elem reflect.Type) (guard, error) {
	if elem == nil {
		return guard{}, ErrInvalidDescriptor
	}
	if want := reflect.TypeFor[T](); !elem.AssignableTo(want) {
		return guard{}, fmt.Errorf("%w: %s is not assignable to %s", ErrInvalidDescriptor, elem, want)
	}
	return guard{elem: elem}, nil
}

// check validates a single item offered at key.
func (g guard) check(key Key, item any) error {
	actual := reflect.TypeOf(item)
	if actual == nil || !actual.AssignableTo(g.elem) {
		return &TypeMismatchError{Key: key, Expected: g.elem, Actual: actual}
	}
	return nil
}

// checkAll validates items by position and stops at the first violation.
func checkAll[T any](g guard, items []T) error {
	for i, item := range items {
		if err := g.check(IntKey(i), item); err != nil {
			return err
		}
	}
	return nil
}

// same reports strict identity: pointers compare by address, other values
// by ==. Values whose dynamic type is not comparable never match.
func same[T any](a, b T) bool {
	x, y := any(a), any(b)
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	if reflect.TypeOf(x) != reflect.TypeOf(y) {
		return false
	}
	if !reflect.ValueOf(x).Comparable() {
		return false
	}
	return x == y
}
