// Package cli implements the cobra-based command line for tarball-extract.
//
// There is a single command:
//
//	tarball-extract [flags] SUBDIR TARBALL COMPRESSION [EXTRA-ARGS...]
//
// Flags must come before SUBDIR; everything after COMPRESSION is handed to
// tar verbatim, including tokens that look like flags.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/tarball-extract/internal/config"
	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// rootFlags holds the flag values of the root command.
type rootFlags struct {
	configPath   string
	maxAttempts  int
	tar          string
	xz           string
	decompressor string
	verbose      bool
	quiet        bool
}

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "tarball-extract [flags] SUBDIR TARBALL COMPRESSION [EXTRA-ARGS...]",
		Short: "Extract a tarball, replacing paths that exist with the wrong type",
		Long: `tarball-extract extracts TARBALL into SUBDIR with tar.

When tar refuses to replace a directory with a file (or the reverse), the
conflicting path is removed and extraction is retried, up to a fixed number
of attempts. Any other tar failure is reported unchanged.

COMPRESSION is one of: none, gzip, bzip2, xz.
EXTRA-ARGS are passed to tar after its built-in flags.

Examples:
  tarball-extract /srv/root site.tar.gz gzip
  tarball-extract /srv/root rootfs.tar.xz xz --exclude=./dev
  tarball-extract --max-attempts 10 /srv/root data.tar none`,

		Args: validateArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, flags)
		},

		// SilenceUsage prevents cobra from printing usage on every error.
		// Usage errors print it explicitly in Run.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// A failed extraction must leave only tar's diagnostics on stderr.
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	f := rootCmd.Flags()
	// Stop flag parsing at SUBDIR so EXTRA-ARGS like --exclude reach tar.
	f.SetInterspersed(false)
	f.StringVar(&flags.configPath, "config", "", "Config file (.yaml, .yml, .json, .jsonc); default $"+config.EnvConfigPath)
	f.IntVar(&flags.maxAttempts, "max-attempts", 0, "Maximum number of extraction attempts (default 5)")
	f.StringVar(&flags.tar, "tar", "", "tar binary to run (default \"tar\")")
	f.StringVar(&flags.xz, "xz", "", "xz binary used for xz archives (default \"xz\")")
	f.StringVar(&flags.decompressor, "decompressor", "", "xz decompressor: external or builtin (default \"external\")")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "Only log warnings and errors")

	return rootCmd
}

// validateArgs requires SUBDIR, TARBALL and COMPRESSION.
func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) < 3 {
		return model.NewUsageError(
			fmt.Sprintf("expected SUBDIR TARBALL COMPRESSION, got %d argument(s)", len(args)), nil)
	}
	return nil
}

// Execute runs the root command and exits the process with the resulting
// status. This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	os.Exit(Run(context.Background(), rootCmd))
}

// Run executes rootCmd and translates its error into an exit status.
//
// A failed extraction exits with the pipeline's status and prints nothing
// more, since tar's diagnostics were already forwarded. CLIErrors print
// "Error: ..." and, for usage errors, the usage text.
func Run(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	stderr := rootCmd.ErrOrStderr()

	var statusErr *model.ExitStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(stderr, cliErr.Message, cliErr.Err)
		if cliErr.ShowUsage {
			_, _ = fmt.Fprint(stderr, rootCmd.UsageString())
		}
		return int(cliErr.Code)
	}

	// Flag parsing errors from cobra land here.
	printError(stderr, err.Error(), nil)
	_, _ = fmt.Fprint(stderr, rootCmd.UsageString())
	return int(model.ExitGeneralError)
}

// printError writes "Error: <message>" to w with a colored prefix.
// fatih/color disables color automatically when stdout is not a terminal.
func printError(w io.Writer, message string, underlying error) {
	prefix := color.New(color.FgRed, color.Bold).Sprint("Error:")
	if underlying != nil {
		_, _ = fmt.Fprintf(w, "%s %s: %v\n", prefix, message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "%s %s\n", prefix, message)
	}
}

// newLogger builds the apex/log logger used for removal and debug output.
func newLogger(w io.Writer, verbose, quiet bool) log.Interface {
	level := log.InfoLevel
	switch {
	case verbose:
		level = log.DebugLevel
	case quiet:
		level = log.WarnLevel
	}
	return &log.Logger{Handler: clihandler.New(w), Level: level}
}
