// Package archivetest builds small tar archives for tests and locates the
// external tools those tests depend on.
package archivetest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// Entry is one archive member. Entries with Dir set are directories and
// ignore Body.
type Entry struct {
	Name string
	Body string
	Dir  bool
}

// File returns a regular-file entry.
func File(name, body string) Entry {
	return Entry{Name: name, Body: body}
}

// Dir returns a directory entry.
func Dir(name string) Entry {
	return Entry{Name: name, Dir: true}
}

// Write creates an archive at path holding entries, compressed with c.
// bzip2 needs the bzip2 binary; the test is skipped when it is missing.
func Write(t *testing.T, path string, c model.Compression, entries ...Entry) {
	t.Helper()

	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, ModTime: mtime, Format: tar.FormatPAX}
		if e.Dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0644
			hdr.Size = int64(len(e.Body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.Dir {
			_, err := io.WriteString(tw, e.Body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())

	var out []byte
	switch c {
	case model.CompressionNone:
		out = raw.Bytes()
	case model.CompressionGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, err := gw.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, gw.Close())
		out = buf.Bytes()
	case model.CompressionBzip2:
		RequireTool(t, "bzip2")
		cmd := exec.Command("bzip2", "-c")
		cmd.Stdin = bytes.NewReader(raw.Bytes())
		data, err := cmd.Output()
		require.NoError(t, err)
		out = data
	case model.CompressionXz:
		var buf bytes.Buffer
		xw, err := archives.Xz{}.OpenWriter(&buf)
		require.NoError(t, err)
		_, err = xw.Write(raw.Bytes())
		require.NoError(t, err)
		require.NoError(t, xw.Close())
		out = buf.Bytes()
	default:
		t.Fatalf("unsupported compression %q", c)
	}

	require.NoError(t, os.WriteFile(path, out, 0644))
}

// RequireTool skips the test when name is not on PATH.
func RequireTool(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found on PATH", name)
	}
	return p
}

// RequireGNUTar skips the test unless "tar" is GNU tar, whose diagnostic
// wording the conflict tests rely on.
func RequireGNUTar(t *testing.T) {
	t.Helper()
	RequireTool(t, "tar")
	out, err := exec.Command("tar", "--version").Output()
	if err != nil || !strings.Contains(string(out), "GNU tar") {
		t.Skip("GNU tar required")
	}
}
