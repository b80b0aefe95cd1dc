package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cutline/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect and cancel render jobs",
	}

	var project string
	var states []string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.ListJobs(cmd.Context(), strings.TrimSpace(project), states...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				spec := tableSpec{
					headers: []string{"ID", "Project", "Version", "Kind", "State", "Attempts", "Progress", "Created"},
					aligns: []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
						alignRight, alignRight, alignLeft},
					empty: "No jobs",
				}
				for _, job := range jobs {
					spec.add(shortID(job.ID), shortID(job.ProjectID), formatVersion(job.Version),
						job.Kind, label(job.State), fmt.Sprintf("%d", job.Attempts),
						formatPercent(job.Progress.Percent), formatAPITime(job.CreatedAt))
				}
				spec.print(cmd.OutOrStdout())
				return nil
			})
		},
	}
	listCmd.Flags().StringVarP(&project, "project", "p", "", "Only jobs of this project")
	listCmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Only jobs in these states (queued, running, committing, succeeded, failed, cancelled)")
	jobsCmd.AddCommand(listCmd)

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show one render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				printJob(cmd, job)
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a queued or running render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, label(job.State))
				return nil
			})
		},
	})

	return jobsCmd
}

func printJob(cmd *cobra.Command, job api.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Project:   %s\n", job.ProjectID)
	fmt.Fprintf(out, "Version:   %s\n", formatVersion(job.Version))
	fmt.Fprintf(out, "Kind:      %s\n", job.Kind)
	fmt.Fprintf(out, "State:     %s\n", label(job.State))
	fmt.Fprintf(out, "Attempts:  %d\n", job.Attempts)
	if job.Progress.Stage != "" || job.Progress.Percent > 0 {
		fmt.Fprintf(out, "Progress:  %s %s\n", formatPercent(job.Progress.Percent), job.Progress.Stage)
	}
	if job.ArtifactKey != "" {
		fmt.Fprintf(out, "Artifact:  %s\n", job.ArtifactKey)
	}
	if job.LastError != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.LastError)
	}
	fmt.Fprintf(out, "Created:   %s\n", formatAPITime(job.CreatedAt))
	fmt.Fprintf(out, "Started:   %s\n", formatAPITime(job.StartedAt))
	fmt.Fprintf(out, "Finished:  %s\n", formatAPITime(job.FinishedAt))
}

func formatPercent(p float64) string {
	if p <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", p)
}
