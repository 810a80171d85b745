package pipeline

import (
	"fmt"
	"io"
	"os"
)

// capture is an attempt-local temporary file receiving tar's stderr.
// Each attempt creates its own, so concurrent or repeated invocations
// never share a diagnostics file.
type capture struct {
	file *os.File
}

func newCapture() (*capture, error) {
	f, err := os.CreateTemp("", "tarball-extract-stderr-*")
	if err != nil {
		return nil, fmt.Errorf("create diagnostics file: %w", err)
	}
	return &capture{file: f}, nil
}

// contents reads back everything written so far.
func (c *capture) contents() (string, error) {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind diagnostics file: %w", err)
	}
	data, err := io.ReadAll(c.file)
	if err != nil {
		return "", fmt.Errorf("read diagnostics file: %w", err)
	}
	return string(data), nil
}

// release closes and deletes the file. It is safe to call more than once.
func (c *capture) release() {
	if c.file == nil {
		return
	}
	name := c.file.Name()
	_ = c.file.Close()
	_ = os.Remove(name)
	c.file = nil
}
