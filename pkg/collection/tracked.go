package collection

import (
	"iter"
	"reflect"
)

// State is the lifecycle state of a Tracked collection.
type State int

const (
	// Open accepts Add and Remove.
	Open State = iota
	// Reconciled has handed its changes to a consumer and rejects mutation
	// until Reset.
	Reconciled
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Reconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

// Tracked records, relative to a baseline, which items are unchanged (clean),
// staged for insertion (dirty) and staged for removal (trashed). The three
// partitions are the diff a persistence step needs.
//
// Remove only records intent: the item stays in clean or dirty and therefore
// in Items. Retained gives the view with trashed identities excluded, which is
// also what Reconcile keeps.
type Tracked[T any] struct {
	clean   *Collection[T]
	dirty   *Collection[T]
	trashed *Collection[T]
	state   State
}

// Changeset is the outcome of reconciling a Tracked collection.
type Changeset[T any] struct {
	Insert []T // dirty items that were not trashed
	Delete []T // trashed items, once each, except ones that only ever lived in dirty
	Keep   []T // clean items that were not trashed
}

// Empty reports whether applying the changeset would do nothing.
func (cs Changeset[T]) Empty() bool {
	return len(cs.Insert) == 0 && len(cs.Delete) == 0
}

// NewTracked returns a tracked collection seeded with baseline, element type T.
func NewTracked[T any](baseline ...T) (*Tracked[T], error) {
	return NewTrackedOf[T](reflect.TypeFor[T](), baseline...)
}

// NewTrackedOf returns a tracked collection seeded with baseline. The
// baseline is validated against elem once; Add and Remove validate against
// the same descriptor.
func NewTrackedOf[T any](elem reflect.Type, baseline ...T) (*Tracked[T], error) {
	clean, err := NewOf[T](elem, baseline...)
	if err != nil {
		return nil, err
	}
	return &Tracked[T]{
		clean:   clean,
		dirty:   clean.emptyLike(),
		trashed: clean.emptyLike(),
	}, nil
}

// Type returns the element type descriptor.
func (t *Tracked[T]) Type() reflect.Type { return t.clean.Type() }

// State returns the lifecycle state.
func (t *Tracked[T]) State() State { return t.state }

// Add stages item as new. Returns ErrReconciled once the collection has been
// reconciled, or a *TypeMismatchError for a non-conforming item.
func (t *Tracked[T]) Add(item T) error {
	if t.state != Open {
		return ErrReconciled
	}
	return t.dirty.Add(item)
}

// Remove stages item for deletion. The item is not struck from clean or
// dirty. Returns ErrReconciled once the collection has been reconciled.
func (t *Tracked[T]) Remove(item T) error {
	if t.state != Open {
		return ErrReconciled
	}
	return t.trashed.Add(item)
}

// Items returns clean followed by dirty.
func (t *Tracked[T]) Items() []T {
	items := make([]T, 0, t.Len())
	items = append(items, t.clean.values...)
	return append(items, t.dirty.values...)
}

// Retained returns Items without any item whose identity was trashed.
func (t *Tracked[T]) Retained() []T {
	items := make([]T, 0, t.Len())
	for _, v := range t.Items() {
		if !t.trashed.Contains(v) {
			items = append(items, v)
		}
	}
	return items
}

// Clean returns the baseline partition.
func (t *Tracked[T]) Clean() []T { return t.clean.Values() }

// Dirty returns the items staged since construction.
func (t *Tracked[T]) Dirty() []T { return t.dirty.Values() }

// Trashed returns the removals staged since construction, in the order they
// were made.
func (t *Tracked[T]) Trashed() []T { return t.trashed.Values() }

// HasDirty reports whether anything was staged with Add.
func (t *Tracked[T]) HasDirty() bool { return t.dirty.IsNotEmpty() }

// HasTrashed reports whether anything was staged with Remove.
func (t *Tracked[T]) HasTrashed() bool { return t.trashed.IsNotEmpty() }

// Len returns the size of Items.
func (t *Tracked[T]) Len() int { return t.clean.Len() + t.dirty.Len() }

// IsEmpty reports whether Items is empty.
func (t *Tracked[T]) IsEmpty() bool { return t.Len() == 0 }

// ToArray returns the ordered projection of Items.
func (t *Tracked[T]) ToArray() []T { return t.Items() }

// All iterates Items with positional keys. Each run snapshots Items when it
// starts.
func (t *Tracked[T]) All() iter.Seq2[Key, T] {
	return func(yield func(Key, T) bool) {
		for i, v := range t.Items() {
			if !yield(IntKey(i), v) {
				return
			}
		}
	}
}

// Reconcile computes the changeset and moves the collection to Reconciled.
// Returns ErrReconciled if it was already reconciled.
func (t *Tracked[T]) Reconcile() (Changeset[T], error) {
	if t.state != Open {
		return Changeset[T]{}, ErrReconciled
	}

	var cs Changeset[T]
	for _, v := range t.dirty.values {
		if !t.trashed.Contains(v) {
			cs.Insert = append(cs.Insert, v)
		}
	}
	for _, v := range t.clean.values {
		if !t.trashed.Contains(v) {
			cs.Keep = append(cs.Keep, v)
		}
	}
	deleted := t.trashed.emptyLike()
	for _, v := range t.trashed.values {
		if deleted.Contains(v) {
			continue
		}
		// Staged and unstaged in the same session: nothing to delete.
		if t.dirty.Contains(v) && !t.clean.Contains(v) {
			continue
		}
		deleted.put(IntKey(deleted.Len()), v)
		cs.Delete = append(cs.Delete, v)
	}

	t.state = Reconciled
	return cs, nil
}

// Reset replaces the baseline, empties dirty and trashed, and reopens the
// collection. On a validation error nothing changes.
func (t *Tracked[T]) Reset(baseline ...T) error {
	clean, err := NewOf[T](t.clean.Type(), baseline...)
	if err != nil {
		return err
	}
	t.clean = clean
	t.dirty = clean.emptyLike()
	t.trashed = clean.emptyLike()
	t.state = Open
	return nil
}
