package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mijorus/collector/cli/helpers"
	"github.com/mijorus/collector/engine/drop"
	"github.com/mijorus/collector/engine/preview"
	"github.com/mijorus/collector/engine/remote"
	"github.com/mijorus/collector/engine/window"
	"github.com/mijorus/collector/pkg/config"
	"github.com/mijorus/collector/pkg/logger"
)

// input is one payload together with the text the user typed for it.
type input struct {
	raw     string
	payload drop.Payload
}

// session drives one window for the lifetime of a command.
type session struct {
	window   *window.Window
	resolver *remote.HTTPResolver
	cfg      *config.Config
	export   string
	keep     bool
	report   helpers.Report
	added    int
	failed   int
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	manager := config.ManagerFromContext(ctx)
	if manager == nil {
		return nil, helpers.NewCliError(helpers.CodeConfig, "configuration manager not found in context")
	}
	cfg := manager.Get()
	index, err := cmd.Flags().GetInt("window")
	if err != nil {
		return nil, fmt.Errorf("failed to get window flag: %w", err)
	}
	if index < 0 {
		return nil, helpers.NewCliError(helpers.CodeInput, "window must not be negative",
			fmt.Sprintf("provided: %d", index))
	}
	export, err := cmd.Flags().GetString("export")
	if err != nil {
		return nil, fmt.Errorf("failed to get export flag: %w", err)
	}
	keep, err := cmd.Flags().GetBool("keep")
	if err != nil {
		return nil, fmt.Errorf("failed to get keep flag: %w", err)
	}
	resolver, err := remote.NewHTTPResolver(remote.Options{
		Timeout:          cfg.Limits.FetchTimeout,
		LinkMaxBytes:     cfg.Limits.LinkMaxBytes,
		DownloadMaxBytes: cfg.Limits.DownloadMaxBytes,
		VerdictTTL:       cfg.Limits.VerdictTTL,
	})
	if err != nil {
		return nil, helpers.WrapCliError(helpers.CodeWindow, "Failed to create link resolver", err)
	}
	w, err := window.New(ctx, window.Options{
		Index:    index,
		CacheDir: cfg.Storage.CacheDir,
		Settings: window.SettingsFromConfig(cfg),
		Preview: preview.Options{
			MaxBytes: cfg.Limits.PreviewMaxBytes,
			Side:     cfg.Limits.PreviewSide,
		},
		Resolver: resolver,
	})
	if err != nil {
		resolver.Close()
		return nil, helpers.WrapCliError(helpers.CodeWindow, "Failed to open window", err)
	}
	s := &session{
		window:   w,
		resolver: resolver,
		cfg:      cfg,
		export:   export,
		keep:     keep,
		report:   helpers.Report{Window: index},
	}
	manager.OnChange(func(next *config.Config) {
		w.UpdateSettings(window.SettingsFromConfig(next))
		logger.FromContext(ctx).Info("Applied configuration change to window", "index", index)
	})
	return s, nil
}

// add drops inputs into the window and records failures for the report.
func (s *session) add(ctx context.Context, inputs ...input) error {
	payloads := make([]drop.Payload, len(inputs))
	for i, in := range inputs {
		payloads[i] = in.payload
	}
	res, err := s.window.Add(ctx, payloads...)
	for _, f := range res.Failed {
		s.report.Failed = append(s.report.Failed, helpers.FailureView{
			Index: s.added + s.failed + f.Index,
			Input: inputs[f.Index].raw,
			Error: f.Err.Error(),
		})
	}
	s.failed += len(res.Failed)
	s.added += len(inputs) - len(res.Failed)
	return err
}

// finish exports, prints the report and releases the window. The scratch
// folder is removed only after a successful export without --keep.
func (s *session) finish(ctx context.Context, cmd *cobra.Command) error {
	defer s.resolver.Close()
	for _, it := range s.window.Items() {
		s.report.Items = append(s.report.Items, helpers.NewItemView(it))
	}
	s.report.Total = s.window.TotalSize()
	var exportErr error
	if s.export != "" {
		written, err := s.window.Export(ctx, s.export)
		s.report.Exported = written
		if err != nil {
			exportErr = helpers.WrapCliError(helpers.CodeExport, "Failed to export collection", err)
		}
	}
	mode := helpers.DetectMode(cmd)
	color := mode == helpers.ModeTable && helpers.ShouldUseColor()
	if err := helpers.WriteReport(cmd.OutOrStdout(), &s.report, mode, s.sizeDisplay(ctx), color); err != nil {
		return err
	}
	if exportErr != nil {
		return exportErr
	}
	if s.export != "" && !s.keep {
		if err := s.window.Close(ctx); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove scratch folder", "error", err)
		}
	}
	if s.failed > 0 && s.added == 0 {
		return helpers.NewCliError(helpers.CodeAllFailed, "No payload could be added",
			fmt.Sprintf("%d failed", s.failed))
	}
	return nil
}

func (s *session) sizeDisplay(ctx context.Context) string {
	if m := config.ManagerFromContext(ctx); m != nil && m.Get() != nil {
		return m.Get().Drops.SizeDisplay
	}
	return s.cfg.Drops.SizeDisplay
}

// runInputs is the shared body of the drop and paste commands.
func runInputs(cmd *cobra.Command, collect func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return reportError(cmd, err)
	}
	if err := collect(ctx, s); err != nil {
		s.resolver.Close()
		return reportError(cmd, err)
	}
	return reportError(cmd, s.finish(ctx, cmd))
}

// reportedError marks errors already printed to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// reportError prints err in the command's output mode.
func reportError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	var reported reportedError
	if errors.As(err, &reported) {
		return err
	}
	err = helpers.Categorize(err)
	mode := helpers.DetectMode(cmd)
	helpers.OutputError(cmd.ErrOrStderr(), err, mode, mode == helpers.ModeTable && helpers.ShouldUseColor())
	return reportedError{err}
}
