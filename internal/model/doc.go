// Package model defines the domain types and value objects for the
// tarball-extract CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (ExtractionRequest, AttemptResult, Compression) are transient,
// process-lifetime values; nothing is persisted between invocations.
//
// The package also defines exit codes (ExitCode) and the error types
// (CLIError, ExitStatusError) that carry exit codes for proper OS process
// exit handling.
package model
