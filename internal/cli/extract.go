package cli

import (
	"errors"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/tarball-extract/internal/config"
	"github.com/shinji-kodama/tarball-extract/internal/extract"
	"github.com/shinji-kodama/tarball-extract/internal/model"
	"github.com/shinji-kodama/tarball-extract/internal/pipeline"
)

// runExtract validates the invocation, then hands it to the retry
// controller. Configuration problems are reported before any subprocess is
// spawned.
func runExtract(cmd *cobra.Command, args []string, flags *rootFlags) error {
	compression, err := model.ParseCompression(args[2])
	if err != nil {
		return model.NewUsageError("invalid COMPRESSION", err)
	}

	cfg, err := resolveConfig(cmd, flags)
	if err != nil {
		return err
	}

	req := &model.ExtractionRequest{
		TargetDir:   args[0],
		Archive:     args[1],
		Compression: compression,
		ExtraArgs:   append([]string(nil), args[3:]...),
	}
	if err := req.Validate(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid request", err)
	}

	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr, flags.verbose, flags.quiet)

	runner := pipeline.NewRunner(pipeline.Options{
		Tar:          cfg.Tar,
		Xz:           cfg.Xz,
		Decompressor: cfg.Decompressor,
		Stdout:       cmd.OutOrStdout(),
		Stderr:       stderr,
		Logger:       logger,
	})
	controller := extract.NewController(runner,
		extract.WithLogger(logger),
		extract.WithDiagnostics(stderr),
		extract.WithMaxAttempts(cfg.MaxAttempts),
	)

	report, err := controller.Extract(cmd.Context(), req)
	if report != nil {
		logger.WithFields(log.Fields{
			"attempts": report.Attempts,
			"removed":  len(report.Removed),
			"status":   report.Status,
		}).Debug("extraction finished")
	}
	if err != nil {
		var statusErr *model.ExitStatusError
		if errors.As(err, &statusErr) {
			return statusErr
		}
		return model.WrapCLIError(model.ExitGeneralError, "extraction could not run", err)
	}
	return nil
}

// resolveConfig loads the config file, then applies any flags the user set
// explicitly.
func resolveConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return cfg, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}

	changed := cmd.Flags().Changed
	if changed("max-attempts") {
		cfg.MaxAttempts = flags.maxAttempts
	}
	if changed("tar") {
		cfg.Tar = flags.tar
	}
	if changed("xz") {
		cfg.Xz = flags.xz
	}
	if changed("decompressor") {
		cfg.Decompressor = pipeline.Decompressor(flags.decompressor)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
	}
	return cfg, nil
}
