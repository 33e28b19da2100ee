package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/observability"
	"github.com/jonathan/resume-intake/internal/tasks"
	"github.com/jonathan/resume-intake/internal/types"
)

type extractOptions struct {
	input    string
	output   string
	strategy string
	save     bool
	quiet    bool
}

func newExtractCmd(opts *globalOptions) *cobra.Command {
	eo := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a profile from a local resume",
		Long:  `Run a single document through the extraction pipeline in process and print the resulting profile.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, opts, eo)
		},
	}
	cmd.Flags().StringVarP(&eo.input, "in", "i", "", "Path to a PDF, DOC or DOCX resume")
	cmd.Flags().StringVarP(&eo.output, "out", "o", "", "Write the profile JSON to this file instead of stdout")
	cmd.Flags().StringVar(&eo.strategy, "strategy", "visual", "Extraction strategy (visual or textual)")
	cmd.Flags().BoolVar(&eo.save, "save", false, "Record the outcome in the history store")
	cmd.Flags().BoolVarP(&eo.quiet, "quiet", "q", false, "Hide the progress bar and profile summary")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func runExtract(cmd *cobra.Command, opts *globalOptions, eo *extractOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(eo.input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, eo.save)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	filename := filepath.Base(eo.input)
	mimeType := intake.MIMETypeFor(filepath.Ext(filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	resp, err := a.service.Submit(ctx, intake.SubmitRequest{
		Filename: filename,
		MIMEType: mimeType,
		Data:     data,
		Strategy: eo.strategy,
	})
	if err != nil {
		return err
	}

	status := progressWriter(cmd, eo.quiet)
	final, err := follow(ctx, a.service, resp.TaskID, status)
	if err != nil {
		return err
	}
	if final.Status == tasks.StatusFailed {
		return fmt.Errorf("extraction failed: %s", final.Error)
	}

	p := observability.NewPrinter(status, opts.noColor)
	p.PrintProfile(final.Result)
	p.Success("Extracted %s using %s extraction", final.Metadata.Filename, final.Method)
	return writeProfile(cmd, eo.output, final.Result)
}

func progressWriter(cmd *cobra.Command, quiet bool) io.Writer {
	if quiet {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}

// follow renders progress for the task until it terminates
func follow(ctx context.Context, svc *intake.Service, id string, w io.Writer) (tasks.Task, error) {
	updates, cancel, err := svc.Watch(id, nil)
	if err != nil {
		return tasks.Task{}, err
	}
	defer cancel()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(string(tasks.StageUpload)),
		progressbar.OptionClearOnFinish(),
	)

	var last tasks.Task
	for {
		select {
		case <-ctx.Done():
			return tasks.Task{}, ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				if !last.Status.Terminal() {
					return tasks.Task{}, errors.New("task disappeared before finishing")
				}
				_ = bar.Finish()
				return last, nil
			}
			last = snap
			bar.Describe(string(snap.Stage))
			_ = bar.Set(snap.Progress)
		}
	}
}

// writeProfile writes the profile JSON to path, or to stdout when path is empty
func writeProfile(cmd *cobra.Command, path string, p *types.Profile) error {
	out := cmd.OutOrStdout()
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
