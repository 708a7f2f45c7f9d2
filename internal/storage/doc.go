// Package storage resolves where session files land on disk.
//
// Field deployments write to a removable card mount that may be
// missing or read-only, so resolution probes each candidate with a
// real write before committing to it and falls back to a directory
// under the user's home when the preferred mount is unusable.
package storage
