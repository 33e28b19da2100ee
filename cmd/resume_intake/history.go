package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/tasks"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage processed resumes",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List processed resumes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, opts, func(svc *intake.Service) error {
				items, err := svc.ListHistory(cmd.Context(), limit, offset, nil)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					opts.printer(cmd).Info("No processed resumes")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILENAME\tSTATUS\tMETHOD\tPROCESSED")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Filename, it.Status, it.Method, it.ProcessedAt.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", intake.DefaultHistoryLimit, "Maximum number of records")
	list.Flags().IntVar(&offset, "offset", 0, "Number of records to skip")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one processed resume as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(svc *intake.Service) error {
				rec, err := svc.GetHistory(cmd.Context(), args[0], nil)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one processed resume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, opts, func(svc *intake.Service) error {
				if err := svc.DeleteHistory(cmd.Context(), args[0], nil); err != nil {
					return err
				}
				opts.printer(cmd).Success("Deleted %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, get, del)
	return cmd
}

// withHistory opens the configured store and hands fn a service reading from it
func withHistory(cmd *cobra.Command, opts *globalOptions, fn func(*intake.Service) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	store, err := db.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	svc := intake.NewService(tasks.NewRegistry(), nil,
		intake.WithHistory(store),
		intake.WithLogger(logger),
	)
	return fn(svc)
}
