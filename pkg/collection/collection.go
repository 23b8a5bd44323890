package collection

import (
	"iter"
	"math"
	"reflect"
	"slices"
)

// Entry is a key and the item stored under it.
type Entry[T any] struct {
	Key   Key
	Value T
}

// Collection is an ordered, key-addressable container whose items all conform
// to one element type. Items appended with Add get the next sequential
// integer key; Set places an item under an explicit key. Iteration follows
// insertion order, and a new key placed with Set goes to the end.
//
// Every mutation validates before it changes anything, so a rejected call
// leaves the collection as it was.
type Collection[T any] struct {
	guard  guard
	keys   []Key
	values []T
	slots  map[Key]int // key -> position in keys/values
	next   uint64      // next sequential integer key; past math.MaxInt once exhausted
}

// New returns a collection of items whose element type is T.
func New[T any](items ...T) (*Collection[T], error) {
	return NewOf[T](reflect.TypeFor[T](), items...)
}

// NewOf returns a collection of items whose element type is elem. elem may be
// narrower than T, for example a concrete type stored behind an interface.
// Returns ErrInvalidDescriptor if elem is not assignable to T, or a
// *TypeMismatchError naming the first item that does not conform.
func NewOf[T any](elem reflect.Type, items ...T) (*Collection[T], error) {
	g, err := newGuard[T](elem)
	if err != nil {
		return nil, err
	}
	if err := checkAll(g, items); err != nil {
		return nil, err
	}

	c := newCollection[T](g, len(items))
	for i, item := range items {
		c.put(IntKey(i), item)
	}
	return c, nil
}

// FromEntries returns a collection holding entries in order. Duplicate keys
// overwrite earlier entries in place.
func FromEntries[T any](elem reflect.Type, entries ...Entry[T]) (*Collection[T], error) {
	g, err := newGuard[T](elem)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := ParseKey(e.Key); err != nil {
			return nil, err
		}
		if err := g.check(e.Key, e.Value); err != nil {
			return nil, err
		}
	}

	c := newCollection[T](g, len(entries))
	for _, e := range entries {
		c.put(e.Key, e.Value)
	}
	return c, nil
}

// Empty returns an empty collection whose element type is T.
func Empty[T any]() *Collection[T] {
	return newCollection[T](guard{elem: reflect.TypeFor[T]()}, 0)
}

func newCollection[T any](g guard, capacity int) *Collection[T] {
	return &Collection[T]{
		guard:  g,
		keys:   make([]Key, 0, capacity),
		values: make([]T, 0, capacity),
		slots:  make(map[Key]int, capacity),
	}
}

// emptyLike returns an empty collection sharing c's element type.
func (c *Collection[T]) emptyLike() *Collection[T] {
	return newCollection[T](c.guard, 0)
}

// put stores item under key without validation.
func (c *Collection[T]) put(key Key, item T) {
	if pos, ok := c.slots[key]; ok {
		c.values[pos] = item
		return
	}
	c.slots[key] = len(c.keys)
	c.keys = append(c.keys, key)
	c.values = append(c.values, item)
	if i, ok := key.Int(); ok && uint64(i) >= c.next {
		c.next = uint64(i) + 1
	}
}

// Type returns the element type descriptor.
func (c *Collection[T]) Type() reflect.Type {
	return c.guard.elem
}

// Add appends item under the next sequential integer key.
// Returns a *TypeMismatchError if item does not conform, or an
// *InvalidKeyError once math.MaxInt has been used as a key.
func (c *Collection[T]) Add(item T) error {
	if c.next > math.MaxInt {
		return &InvalidKeyError{Key: c.next}
	}
	key := IntKey(int(c.next))
	if err := c.guard.check(key, item); err != nil {
		return err
	}
	c.put(key, item)
	return nil
}

// Set stores item under key, overwriting any existing item in place.
// key must be a string or a non-negative integer; otherwise an
// *InvalidKeyError is returned. A non-conforming item yields a
// *TypeMismatchError.
func (c *Collection[T]) Set(key any, item T) error {
	k, err := ParseKey(key)
	if err != nil {
		return err
	}
	if err := c.guard.check(k, item); err != nil {
		return err
	}
	c.put(k, item)
	return nil
}

// Get returns the item stored under key. The second result is false when
// the key is absent or not a valid key.
func (c *Collection[T]) Get(key any) (T, bool) {
	var zero T
	k, err := ParseKey(key)
	if err != nil {
		return zero, false
	}
	pos, ok := c.slots[k]
	if !ok {
		return zero, false
	}
	return c.values[pos], true
}

// Remove deletes the first item identical to item and reports whether one
// was found. Integer keys are renumbered densely afterwards; string keys are
// left as they were.
func (c *Collection[T]) Remove(item T) bool {
	pos := slices.IndexFunc(c.values, func(v T) bool { return same(v, item) })
	if pos < 0 {
		return false
	}
	c.keys = slices.Delete(c.keys, pos, pos+1)
	c.values = slices.Delete(c.values, pos, pos+1)
	c.reindex()
	return true
}

// reindex renumbers integer keys 0..n-1 in order and rebuilds the slot map.
func (c *Collection[T]) reindex() {
	n := 0
	clear(c.slots)
	for i, k := range c.keys {
		if !k.IsString() {
			k = IntKey(n)
			c.keys[i] = k
			n++
		}
		c.slots[k] = i
	}
	c.next = uint64(n)
}

// Clear removes every item. The element type is kept.
func (c *Collection[T]) Clear() {
	c.keys = c.keys[:0]
	var zero T
	for i := range c.values {
		c.values[i] = zero
	}
	c.values = c.values[:0]
	clear(c.slots)
	c.next = 0
}

// Contains reports whether an item identical to item is stored.
func (c *Collection[T]) Contains(item T) bool {
	return slices.ContainsFunc(c.values, func(v T) bool { return same(v, item) })
}

// ContainsKey reports whether key is present.
func (c *Collection[T]) ContainsKey(key any) bool {
	k, err := ParseKey(key)
	if err != nil {
		return false
	}
	_, ok := c.slots[k]
	return ok
}

// Len returns the number of items.
func (c *Collection[T]) Len() int { return len(c.values) }

// IsEmpty reports whether the collection holds no items.
func (c *Collection[T]) IsEmpty() bool { return len(c.values) == 0 }

// IsNotEmpty reports whether the collection holds at least one item.
func (c *Collection[T]) IsNotEmpty() bool { return len(c.values) > 0 }

// First returns the first item in iteration order.
func (c *Collection[T]) First() (T, bool) {
	if len(c.values) == 0 {
		var zero T
		return zero, false
	}
	return c.values[0], true
}

// Last returns the last item in iteration order.
func (c *Collection[T]) Last() (T, bool) {
	if len(c.values) == 0 {
		var zero T
		return zero, false
	}
	return c.values[len(c.values)-1], true
}

// Keys returns the keys in iteration order.
func (c *Collection[T]) Keys() []Key {
	return slices.Clone(c.keys)
}

// Values returns the items in iteration order.
func (c *Collection[T]) Values() []T {
	return append(make([]T, 0, len(c.values)), c.values...)
}

// ToArray returns the ordered projection of the collection. Use Entries when
// the keys matter.
func (c *Collection[T]) ToArray() []T {
	return c.Values()
}

// Entries returns key/item pairs in iteration order.
func (c *Collection[T]) Entries() []Entry[T] {
	entries := make([]Entry[T], len(c.keys))
	for i, k := range c.keys {
		entries[i] = Entry[T]{Key: k, Value: c.values[i]}
	}
	return entries
}

// Sequential reports whether the keys are exactly 0..Len()-1 in order, which
// is the case for collections built only with New and Add.
func (c *Collection[T]) Sequential() bool {
	for i, k := range c.keys {
		if n, ok := k.Int(); !ok || n != i {
			return false
		}
	}
	return true
}

// All returns an iterator over key/item pairs. Each run of the iterator works
// on a snapshot taken when it starts; mutations made during the run are not
// observed by it.
func (c *Collection[T]) All() iter.Seq2[Key, T] {
	return func(yield func(Key, T) bool) {
		keys, values := slices.Clone(c.keys), slices.Clone(c.values)
		for i, k := range keys {
			if !yield(k, values[i]) {
				return
			}
		}
	}
}
