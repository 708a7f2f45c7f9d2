// Package cli defines the trisonica-logger command tree: the root
// command runs a logging session; subcommands inspect past sessions.
// All wiring between configuration, storage, the device session, and
// the engine happens here so main stays a thin shell.
package cli
