package pipeline

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/tarball-extract/internal/archivetest"
	"github.com/shinji-kodama/tarball-extract/internal/model"
)

func quietLogger() log.Interface {
	return &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
}

// writeScript creates an executable shell script standing in for an
// external tool.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0755))
	return p
}

// TestTarArgs verifies the flag order: -C target, -x, compression flag,
// -f -, then extra args verbatim.
func TestTarArgs(t *testing.T) {
	tests := []struct {
		name     string
		req      model.ExtractionRequest
		expected []string
	}{
		{
			name:     "none",
			req:      model.ExtractionRequest{TargetDir: "/tmp/x", Compression: model.CompressionNone},
			expected: []string{"-C", "/tmp/x", "-x", "-f", "-"},
		},
		{
			name:     "gzip",
			req:      model.ExtractionRequest{TargetDir: "/tmp/x", Compression: model.CompressionGzip},
			expected: []string{"-C", "/tmp/x", "-x", "-z", "-f", "-"},
		},
		{
			name:     "bzip2",
			req:      model.ExtractionRequest{TargetDir: "/tmp/x", Compression: model.CompressionBzip2},
			expected: []string{"-C", "/tmp/x", "-x", "-j", "-f", "-"},
		},
		{
			name: "xz with extra args",
			req: model.ExtractionRequest{
				TargetDir:   "/tmp/x",
				Compression: model.CompressionXz,
				ExtraArgs:   []string{"--exclude=*.log", "var/www"},
			},
			expected: []string{"-C", "/tmp/x", "-x", "-f", "-", "--exclude=*.log", "var/www"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TarArgs(&tt.req))
		})
	}
}

func TestPipelineStatus(t *testing.T) {
	assert.Equal(t, 0, pipelineStatus(0, 0))
	assert.Equal(t, 2, pipelineStatus(2, 0))
	assert.Equal(t, 2, pipelineStatus(2, 1))
	assert.Equal(t, 1, pipelineStatus(0, 1))
}

// TestRun_UnknownCompression ensures no subprocess is attempted.
func TestRun_UnknownCompression(t *testing.T) {
	r := NewRunner(Options{Tar: "/nonexistent/tar", Logger: quietLogger()})
	req := &model.ExtractionRequest{TargetDir: t.TempDir(), Archive: "x", Compression: "bogus"}

	_, err := r.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnknownCompression))
}

func TestRun_MissingTarBinary(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.tar")
	archivetest.Write(t, archive, model.CompressionNone, archivetest.File("a", "1"))

	r := NewRunner(Options{Tar: filepath.Join(dir, "no-such-tar"), Logger: quietLogger()})
	_, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir: t.TempDir(), Archive: archive, Compression: model.CompressionNone,
	})
	assert.Error(t, err)
}

// TestRun_CapturesDiagnostics uses a stand-in tar to check that stderr is
// captured byte for byte and the exit status is reported.
func TestRun_CapturesDiagnostics(t *testing.T) {
	dir := t.TempDir()
	diag := "tar: var/www/html: Cannot open: File exists\ntar: Exiting with failure status due to previous errors\n"
	fakeTar := writeScript(t, dir, "tar", "cat >/dev/null\nprintf '%s' '"+diag+"' >&2\nexit 2\n")

	archive := filepath.Join(dir, "a.tar")
	require.NoError(t, os.WriteFile(archive, []byte("data"), 0644))

	r := NewRunner(Options{Tar: fakeTar, Logger: quietLogger()})
	res, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir: dir, Archive: archive, Compression: model.CompressionGzip,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitStatus)
	assert.Equal(t, diag, res.Diagnostics)
}

// TestRun_ReleasesDiagnosticsFile checks that nothing is left in the temp
// directory after an attempt, successful or not.
func TestRun_ReleasesDiagnosticsFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR is not consulted on windows")
	}
	dir := t.TempDir()
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	archive := filepath.Join(dir, "a.tar")
	require.NoError(t, os.WriteFile(archive, []byte("data"), 0644))

	for _, code := range []string{"0", "2"} {
		fakeTar := writeScript(t, dir, "tar"+code, "cat >/dev/null\necho oops >&2\nexit "+code+"\n")
		r := NewRunner(Options{Tar: fakeTar, Logger: quietLogger()})
		_, err := r.Run(context.Background(), &model.ExtractionRequest{
			TargetDir: dir, Archive: archive, Compression: model.CompressionNone,
		})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestRun_Compressions extracts the same tree with every scheme and checks
// the result is identical.
func TestRun_Compressions(t *testing.T) {
	archivetest.RequireTool(t, "tar")

	entries := []archivetest.Entry{
		archivetest.Dir("etc/"),
		archivetest.File("etc/app.conf", "key=value\n"),
		archivetest.File("README", "hello\n"),
	}

	tests := []struct {
		name         string
		compression  model.Compression
		decompressor Decompressor
		tool         string
	}{
		{"none", model.CompressionNone, DecompressorExternal, ""},
		{"gzip", model.CompressionGzip, DecompressorExternal, "gzip"},
		{"bzip2", model.CompressionBzip2, DecompressorExternal, "bzip2"},
		{"xz external", model.CompressionXz, DecompressorExternal, "xz"},
		{"xz builtin", model.CompressionXz, DecompressorBuiltin, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool != "" {
				archivetest.RequireTool(t, tt.tool)
			}
			archive := filepath.Join(t.TempDir(), "a.tar")
			archivetest.Write(t, archive, tt.compression, entries...)
			target := t.TempDir()

			r := NewRunner(Options{Decompressor: tt.decompressor, Logger: quietLogger()})
			res, err := r.Run(context.Background(), &model.ExtractionRequest{
				TargetDir: target, Archive: archive, Compression: tt.compression,
			})
			require.NoError(t, err)
			require.Equal(t, 0, res.ExitStatus, res.Diagnostics)
			assert.Empty(t, res.Diagnostics)

			data, err := os.ReadFile(filepath.Join(target, "etc", "app.conf"))
			require.NoError(t, err)
			assert.Equal(t, "key=value\n", string(data))
			data, err = os.ReadFile(filepath.Join(target, "README"))
			require.NoError(t, err)
			assert.Equal(t, "hello\n", string(data))
		})
	}
}

// TestRun_StdoutPassesThrough checks tar's stdout reaches the configured
// writer and is not mixed into diagnostics.
func TestRun_StdoutPassesThrough(t *testing.T) {
	archivetest.RequireGNUTar(t)

	archive := filepath.Join(t.TempDir(), "a.tar")
	archivetest.Write(t, archive, model.CompressionNone, archivetest.File("listed.txt", "x"))

	var stdout bytes.Buffer
	r := NewRunner(Options{Stdout: &stdout, Logger: quietLogger()})
	res, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir:   t.TempDir(),
		Archive:     archive,
		Compression: model.CompressionNone,
		ExtraArgs:   []string{"-v"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitStatus)
	assert.Contains(t, stdout.String(), "listed.txt")
	assert.Empty(t, res.Diagnostics)
}

// TestRun_DirectoryConflict reproduces the failure the controller recovers
// from: a regular file in the archive where a non-empty directory exists.
func TestRun_DirectoryConflict(t *testing.T) {
	archivetest.RequireGNUTar(t)

	archive := filepath.Join(t.TempDir(), "a.tar.gz")
	archivetest.Write(t, archive, model.CompressionGzip, archivetest.File("var/www/html", "<html/>"))

	target := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(target, "var", "www", "html"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "var", "www", "html", "index.html"), []byte("x"), 0644))

	r := NewRunner(Options{Logger: quietLogger()})
	res, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir: target, Archive: archive, Compression: model.CompressionGzip,
	})
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitStatus)
	assert.Contains(t, res.Diagnostics, "var/www/html: Cannot open: File exists")

	// Partial output is not rolled back.
	_, statErr := os.Stat(filepath.Join(target, "var", "www", "html", "index.html"))
	assert.NoError(t, statErr)
}

// TestRun_BuiltinXzCorrupt reports a broken xz stream as a failed attempt
// rather than an error, like a failing xz binary would.
func TestRun_BuiltinXzCorrupt(t *testing.T) {
	archivetest.RequireTool(t, "tar")

	archive := filepath.Join(t.TempDir(), "a.tar.xz")
	require.NoError(t, os.WriteFile(archive, []byte("not xz at all"), 0644))

	var stderr bytes.Buffer
	r := NewRunner(Options{Decompressor: DecompressorBuiltin, Stderr: &stderr, Logger: quietLogger()})
	res, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir: t.TempDir(), Archive: archive, Compression: model.CompressionXz,
	})
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitStatus)
	assert.True(t, strings.HasPrefix(stderr.String(), "xz: "), "stderr: %q", stderr.String())
	assert.NotContains(t, stderr.String(), "xz: xz:")
}

// TestRun_BuiltinXzTruncated cuts a valid stream in the middle of its data
// block; the attempt must fail even though decoding started fine.
func TestRun_BuiltinXzTruncated(t *testing.T) {
	archivetest.RequireTool(t, "tar")

	body := make([]byte, 64<<10)
	_, err := crand.Read(body)
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "a.tar.xz")
	archivetest.Write(t, archive, model.CompressionXz, archivetest.File("blob.bin", string(body)))
	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archive, data[:len(data)/2], 0644))

	var stderr bytes.Buffer
	r := NewRunner(Options{Decompressor: DecompressorBuiltin, Stderr: &stderr, Logger: quietLogger()})
	res, err := r.Run(context.Background(), &model.ExtractionRequest{
		TargetDir: t.TempDir(), Archive: archive, Compression: model.CompressionXz,
	})
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitStatus)
	assert.Equal(t, 1, strings.Count(stderr.String(), "xz:"), "stderr: %q", stderr.String())
}

func TestDecompressor_IsValid(t *testing.T) {
	assert.True(t, DecompressorExternal.IsValid())
	assert.True(t, DecompressorBuiltin.IsValid())
	assert.False(t, Decompressor("7z").IsValid())
}
