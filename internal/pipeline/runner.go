package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/apex/log"
	"github.com/mholt/archives"

	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// Decompressor selects how xz archives are decompressed.
type Decompressor string

const (
	// DecompressorExternal runs the xz binary as a pipeline stage.
	DecompressorExternal Decompressor = "external"

	// DecompressorBuiltin decodes xz in-process and streams plain tar
	// bytes into tar's stdin.
	DecompressorBuiltin Decompressor = "builtin"
)

// IsValid checks whether the Decompressor value is known.
func (d Decompressor) IsValid() bool {
	return d == DecompressorExternal || d == DecompressorBuiltin
}

// Options configures the binaries and streams a Runner uses.
type Options struct {
	// Tar is the tar binary name or path. Default "tar".
	Tar string

	// Xz is the xz binary name or path used by DecompressorExternal.
	// Default "xz".
	Xz string

	// Decompressor selects the xz stage. Default DecompressorExternal.
	Decompressor Decompressor

	// Stdout receives tar's standard output unchanged. Default os.Stdout.
	Stdout io.Writer

	// Stderr receives the decompressor's diagnostics unchanged.
	// Default os.Stderr. tar's own stderr is always captured instead.
	Stderr io.Writer

	// Logger receives debug output about each attempt.
	Logger log.Interface
}

// Runner executes extraction attempts. It holds no per-attempt state, so
// a single Runner may be reused across retries.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner, filling in defaults for unset options.
func NewRunner(opts Options) *Runner {
	if opts.Tar == "" {
		opts.Tar = "tar"
	}
	if opts.Xz == "" {
		opts.Xz = "xz"
	}
	if opts.Decompressor == "" {
		opts.Decompressor = DecompressorExternal
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = log.Log
	}
	return &Runner{opts: opts}
}

// TarArgs builds tar's argument list: change into the target directory,
// extract, the compression flag if any, read the archive from stdin, then
// the caller's extra arguments verbatim.
func TarArgs(req *model.ExtractionRequest) []string {
	args := []string{"-C", req.TargetDir, "-x"}
	if flag := req.Compression.TarFlag(); flag != "" {
		args = append(args, flag)
	}
	args = append(args, "-f", "-")
	return append(args, req.ExtraArgs...)
}

// Run performs one attempt. A non-zero exit status is reported in the
// AttemptResult, not as an error; errors are reserved for problems that
// retrying cannot fix (unknown compression, unreadable archive, a binary
// that cannot be started).
//
// The status is tar's, except when tar succeeds and the xz stage fails:
// then it is the decompressor's, so a truncated stream is never reported
// as success. Diagnostics only ever hold tar's stderr.
//
// Files tar wrote before failing stay on disk.
func (r *Runner) Run(ctx context.Context, req *model.ExtractionRequest) (*model.AttemptResult, error) {
	if !req.Compression.IsValid() {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownCompression, req.Compression)
	}
	if req.Compression.NeedsDecompressor() && !r.opts.Decompressor.IsValid() {
		return nil, fmt.Errorf("unknown decompressor %q", r.opts.Decompressor)
	}

	archive, err := os.Open(req.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = archive.Close() }()

	capture, err := newCapture()
	if err != nil {
		return nil, err
	}
	defer capture.release()

	args := TarArgs(req)
	// #nosec G204: the binary comes from configuration; extra args are
	// forwarded to tar on purpose.
	tar := exec.CommandContext(ctx, r.opts.Tar, args...)
	tar.Stdout = r.opts.Stdout
	tar.Stderr = capture.file

	r.opts.Logger.WithFields(log.Fields{
		"compression": req.Compression.String(),
		"argv":        r.opts.Tar + " " + strings.Join(args, " "),
	}).Debug("starting tar")

	var status int
	switch {
	case !req.Compression.NeedsDecompressor():
		tar.Stdin = archive
		status, err = runSingle(tar)
	case r.opts.Decompressor == DecompressorBuiltin:
		status, err = r.runBuiltinXz(tar, archive)
	default:
		status, err = r.runExternalXz(ctx, tar, archive)
	}
	if err != nil {
		return nil, err
	}

	diagnostics, err := capture.contents()
	if err != nil {
		return nil, err
	}
	return &model.AttemptResult{ExitStatus: status, Diagnostics: diagnostics}, nil
}

// runSingle runs tar reading directly from the archive file.
func runSingle(tar *exec.Cmd) (int, error) {
	if err := tar.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", tar.Path, err)
	}
	return exitStatus(tar.Wait())
}

// runExternalXz wires "xz -d -c" into tar through an OS pipe. The parent
// closes both pipe ends after starting the children, so when tar exits
// early xz sees a broken pipe instead of blocking.
func (r *Runner) runExternalXz(ctx context.Context, tar *exec.Cmd, archive *os.File) (int, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create pipe: %w", err)
	}

	// #nosec G204: the binary comes from configuration.
	xz := exec.CommandContext(ctx, r.opts.Xz, "-d", "-c")
	xz.Stdin = archive
	xz.Stdout = pw
	xz.Stderr = r.opts.Stderr
	tar.Stdin = pr

	if err := xz.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return 0, fmt.Errorf("start %s: %w", r.opts.Xz, err)
	}
	_ = pw.Close()

	if err := tar.Start(); err != nil {
		_ = pr.Close()
		_ = xz.Process.Kill()
		_ = xz.Wait()
		return 0, fmt.Errorf("start %s: %w", tar.Path, err)
	}
	_ = pr.Close()

	tarStatus, tarErr := exitStatus(tar.Wait())
	xzStatus, xzErr := exitStatus(xz.Wait())
	if tarErr != nil {
		return 0, tarErr
	}
	if xzErr != nil {
		return 0, xzErr
	}
	return pipelineStatus(tarStatus, xzStatus), nil
}

// runBuiltinXz decodes the archive in-process and feeds the result to tar.
// A stream whose header does not decode still runs tar, on empty input, as
// tar would behind a failing xz binary; a decode error later in the stream
// is recorded by decodeReader. Either way the decoder counts as a failed
// stage with status 1.
func (r *Runner) runBuiltinXz(tar *exec.Cmd, archive *os.File) (int, error) {
	var source *decodeReader
	decoded, err := archives.Xz{}.OpenReader(archive)
	if err != nil {
		source = &decodeReader{r: strings.NewReader(""), err: err}
	} else {
		defer func() { _ = decoded.Close() }()
		source = &decodeReader{r: decoded}
	}
	tar.Stdin = source

	if err := tar.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", tar.Path, err)
	}
	err = tar.Wait()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// tar exited cleanly; the error came from copying its stdin.
		err = nil
	}
	tarStatus, err := exitStatus(err)
	if err != nil {
		return 0, err
	}
	if source.err == nil {
		return tarStatus, nil
	}

	// The xz library already prefixes its messages with "xz:".
	msg := source.err.Error()
	if !strings.HasPrefix(msg, "xz:") {
		msg = "xz: " + msg
	}
	_, _ = fmt.Fprintln(r.opts.Stderr, msg)
	return pipelineStatus(tarStatus, 1), nil
}

// decodeReader remembers the first decode error, which exec would
// otherwise drop when tar exits non-zero.
type decodeReader struct {
	r   io.Reader
	err error
}

func (d *decodeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF && d.err == nil {
		d.err = err
	}
	return n, err
}

// pipelineStatus returns tar's status, unless tar succeeded and the
// decompressor did not.
func pipelineStatus(tarStatus, decompressorStatus int) int {
	if tarStatus == 0 && decompressorStatus != 0 {
		return decompressorStatus
	}
	return tarStatus
}

// exitStatus converts the error returned by Wait into an exit status.
// Processes killed by a signal report -1 from ExitCode; they map to 1.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return code, nil
	}
	return 0, err
}
