// Package types defines the record entity, backend configuration, and the
// standard error values for the stage persistence workflow.
package types
