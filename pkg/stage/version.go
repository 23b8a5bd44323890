// Package stage holds build metadata for the stage binary.
package stage

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/stage/pkg/stage.Version=...".
var Version = "v0.1.0"
