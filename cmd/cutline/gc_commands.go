package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cutline/internal/api"
	"cutline/internal/gc"
)

func newGCCommand(ctx *commandContext) *cobra.Command {
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Run garbage collection stages",
	}

	var ttlDays, keepLatest int
	candidatesCmd := &cobra.Command{
		Use:   "candidates",
		Short: "List exports eligible for archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Candidates(cmd.Context(), ttlDays, keepLatest)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Policy: older than %d days, keep latest %d\n", resp.TTLDays, resp.KeepLatest)
				printCandidates(cmd, resp.Candidates)
				return nil
			})
		},
	}
	candidatesCmd.Flags().IntVar(&ttlDays, "ttl-days", -1, "Minimum export age in days (default from config)")
	candidatesCmd.Flags().IntVar(&keepLatest, "keep-latest", -1, "Newest versions kept per project (default from config)")
	gcCmd.AddCommand(candidatesCmd)

	var fromCandidates bool
	markCmd := &cobra.Command{
		Use:   "mark [ID...]",
		Short: "Mark exports for archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !fromCandidates {
				return fmt.Errorf("provide export ids or --candidates")
			}
			return ctx.withClient(func(client *api.Client) error {
				ids := args
				if fromCandidates {
					resp, err := client.Candidates(cmd.Context(), -1, -1)
					if err != nil {
						return err
					}
					for _, c := range resp.Candidates {
						ids = append(ids, c.ExportID)
					}
					if len(ids) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No candidates")
						return nil
					}
				}
				resp, err := client.Mark(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return printReport(ctx, cmd, resp.Report)
			})
		},
	}
	markCmd.Flags().BoolVar(&fromCandidates, "candidates", false, "Mark every current candidate")
	gcCmd.AddCommand(markCmd)

	gcCmd.AddCommand(&cobra.Command{
		Use:   "unmark ID...",
		Short: "Return marked exports to ready",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Unmark(cmd.Context(), args)
				if err != nil {
					return err
				}
				return printReport(ctx, cmd, resp.Report)
			})
		},
	})

	gcCmd.AddCommand(&cobra.Command{
		Use:   "archive",
		Short: "Copy marked exports to archive storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Archive(cmd.Context())
				if err != nil {
					return err
				}
				return printReport(ctx, cmd, resp.Report)
			})
		},
	})

	var minDays int
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete archived copies older than --min-days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.DeleteArchived(cmd.Context(), minDays)
				if err != nil {
					return err
				}
				return printReport(ctx, cmd, resp.Report)
			})
		},
	}
	deleteCmd.Flags().IntVar(&minDays, "min-days", -1, "Minimum days in archive (default from config)")
	gcCmd.AddCommand(deleteCmd)

	return gcCmd
}

func printCandidates(cmd *cobra.Command, candidates []gc.Candidate) {
	spec := tableSpec{
		headers: []string{"Export", "Project", "Version", "Age", "Size"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
		empty:   "No candidates",
	}
	for _, c := range candidates {
		spec.add(c.ExportID, shortID(c.ProjectID), formatVersion(c.Version),
			fmt.Sprintf("%dd", c.AgeDays), formatBytes(c.Size))
	}
	spec.print(cmd.OutOrStdout())
}

func printReport(ctx *commandContext, cmd *cobra.Command, report gc.Report) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, report)
	}
	out := cmd.OutOrStdout()
	summary := fmt.Sprintf("%s: %d succeeded, %d failed", label(string(report.Stage)), report.Succeeded, report.Failed)
	if report.Bytes > 0 {
		summary += fmt.Sprintf(", %s", formatBytes(report.Bytes))
	}
	fmt.Fprintln(out, summary)
	spec := tableSpec{
		headers: []string{"Export", "Result", "Error"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft},
	}
	for _, item := range report.Items {
		result := "ok"
		switch {
		case !item.Success:
			result = "failed"
		case !item.Changed:
			result = "unchanged"
		}
		spec.add(item.ID, result, orDash(item.Error))
	}
	spec.print(out)
	return nil
}
