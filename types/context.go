// Package types holds the values the CLI layer hands to every command
// through kong's binding mechanism.
package types

import "github.com/rs/zerolog"

// DefaultVersion is used until the build injects a real one.
const DefaultVersion = "dev"

// AppContext carries the per-invocation plumbing commands need but
// should not construct themselves.
type AppContext struct {
	Version string
	Log     zerolog.Logger
}
