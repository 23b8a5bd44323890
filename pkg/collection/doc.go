// Package collection provides the in-memory containers used to stage changes
// before they are persisted.
//
// Collection is a homogeneous, ordered, key-addressable container: every item
// must conform to one element type fixed at construction. Tracked layers
// provenance over three such partitions (clean, dirty, trashed) so that a
// persistence step can read inserts and deletes directly instead of diffing
// snapshots.
//
// Neither type is safe for concurrent use. A container is owned by a single
// goroutine; callers that share one must synchronize externally.
package collection
