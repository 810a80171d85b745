// Package pipeline runs one extraction attempt: an optional decompression
// stage piped into tar, with tar's stderr captured to a temporary file that
// lives only as long as the attempt.
//
// All tar invocations are performed via os/exec calls to the tar binary.
// gzip and bzip2 archives are decompressed by tar itself (-z, -j). xz
// archives go through a separate stage, either the xz binary or an
// in-process decoder from github.com/mholt/archives.
package pipeline
