// Package model defines the domain types for the tarball-extract CLI.
//
// These types flow between the CLI layer, the pipeline runner, the failure
// classifier, and the retry controller. None of them outlive a single
// invocation.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Compression identifies how the archive bytes are compressed.
// The value selects both the decompression stage of the pipeline and the
// decompression flag handed to tar.
type Compression string

const (
	// CompressionNone streams the archive to tar unchanged, with no
	// decompression flag.
	CompressionNone Compression = "none"

	// CompressionGzip streams the archive unchanged and passes -z to tar.
	CompressionGzip Compression = "gzip"

	// CompressionBzip2 streams the archive unchanged and passes -j to tar.
	CompressionBzip2 Compression = "bzip2"

	// CompressionXz pipes the archive through a dedicated xz decompressor
	// before tar sees it; tar receives plain tar bytes and no flag.
	CompressionXz Compression = "xz"
)

// ErrUnknownCompression is returned when a compression name is not one of
// none, gzip, bzip2 or xz.
var ErrUnknownCompression = errors.New("unknown compression scheme")

// String returns the string representation of Compression.
func (c Compression) String() string {
	return string(c)
}

// IsValid checks whether the Compression value is one of the
// predefined schemes.
func (c Compression) IsValid() bool {
	switch c {
	case CompressionNone, CompressionGzip, CompressionBzip2, CompressionXz:
		return true
	default:
		return false
	}
}

// TarFlag returns the tar flag that makes tar decompress the stream itself,
// or "" when tar should read plain bytes (none, and xz which is
// decompressed by a separate stage).
func (c Compression) TarFlag() string {
	switch c {
	case CompressionGzip:
		return "-z"
	case CompressionBzip2:
		return "-j"
	default:
		return ""
	}
}

// NeedsDecompressor reports whether the archive must pass through a
// dedicated decompression stage before reaching tar.
func (c Compression) NeedsDecompressor() bool {
	return c == CompressionXz
}

// ParseCompression converts a command-line token to a Compression.
// Matching is exact: the CLI contract names the literal strings.
func ParseCompression(s string) (Compression, error) {
	c := Compression(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: none, gzip, bzip2, xz)", ErrUnknownCompression, s)
	}
	return c, nil
}

// ExtractionRequest describes one extraction invocation. It is built once
// by the CLI and never modified while the controller retries.
type ExtractionRequest struct {
	// TargetDir is the directory tar changes into before extracting.
	TargetDir string

	// Archive is the path of the (possibly compressed) tar file.
	Archive string

	// Compression selects the decompression stage and tar flag.
	Compression Compression

	// ExtraArgs are appended verbatim after tar's built-in flags,
	// e.g. include/exclude filters.
	ExtraArgs []string
}

// Validate checks the request before any subprocess is spawned.
// The target directory must exist and be writable; the archive must be a
// readable regular file; the compression must be recognized.
func (r *ExtractionRequest) Validate() error {
	if !r.Compression.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownCompression, r.Compression)
	}
	if r.TargetDir == "" {
		return fmt.Errorf("target directory must not be empty")
	}
	if r.Archive == "" {
		return fmt.Errorf("archive path must not be empty")
	}

	info, err := os.Stat(r.TargetDir)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target directory %s is not a directory", r.TargetDir)
	}
	// Create a real file; mode bits do not reflect ACLs or root.
	check, err := os.CreateTemp(r.TargetDir, ".tarball-extract-check-*")
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", r.TargetDir, err)
	}
	_ = check.Close()
	_ = os.Remove(check.Name())

	f, err := os.Open(r.Archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("archive %s is a directory", r.Archive)
	}
	return nil
}

// AttemptResult is what one pipeline run produces: the exit status of the
// pipeline and the lines tar wrote to its diagnostic stream.
type AttemptResult struct {
	// ExitStatus is 0 on success. For failures it is tar's status, or the
	// decompressor's when tar itself succeeded.
	ExitStatus int

	// Diagnostics is tar's captured stderr, byte for byte.
	Diagnostics string
}

// Succeeded reports whether the attempt exited with status 0.
func (a *AttemptResult) Succeeded() bool {
	return a.ExitStatus == 0
}

// Lines splits the captured diagnostics into lines without their
// terminators. A trailing newline does not produce an empty last line.
func (a *AttemptResult) Lines() []string {
	text := strings.TrimRight(a.Diagnostics, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ConflictPath turns a path reported by tar into a clean path relative to
// targetDir. tar prints names with escape quoting (octal \NNN for bytes
// outside the printable range, \\ for a backslash), which is decoded
// first. An absolute path, reported when tar runs with -P, is accepted only
// if it lies under targetDir. The empty string is returned for paths that
// cannot be removed safely, including targetDir itself.
func ConflictPath(reported, targetDir string) string {
	p := filepath.Clean(filepath.FromSlash(unescapeTarName(reported)))
	if filepath.IsAbs(p) {
		root, err := filepath.Abs(targetDir)
		if err != nil {
			return ""
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return ""
		}
		p = rel
	}
	if p == "." || p == "" {
		return ""
	}
	return p
}

// unescapeTarName decodes tar's escape quoting style. Text that does not
// decode is returned unchanged.
func unescapeTarName(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}
	decoded, err := strconv.Unquote(`"` + strings.ReplaceAll(name, `"`, `\"`) + `"`)
	if err != nil {
		return name
	}
	return decoded
}

// ExitCode defines the CLI's own exit codes. A failed extraction exits with
// the pipeline's status instead, carried by ExitStatusError.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError covers usage errors, unknown compression, invalid
	// configuration and internal failures.
	ExitGeneralError ExitCode = 1
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error

	// ShowUsage asks the CLI to print usage text after the message.
	ShowUsage bool
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// NewUsageError creates a CLIError that prints usage text with the message.
func NewUsageError(message string, err error) *CLIError {
	return &CLIError{Code: ExitGeneralError, Message: message, Err: err, ShowUsage: true}
}

// ExitStatusError reports a failed extraction. The diagnostics have already
// been forwarded verbatim, so the CLI exits with Status and prints nothing.
type ExitStatusError struct {
	// Status is the failed pipeline's exit status.
	Status int

	// Err optionally explains why retrying stopped.
	Err error
}

// Error satisfies the error interface.
func (e *ExitStatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("extraction failed with status %d", e.Status)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ExitStatusError) Unwrap() error {
	return e.Err
}
