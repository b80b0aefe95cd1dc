package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cutline/internal/api"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create and inspect projects",
	}

	projectCmd.AddCommand(&cobra.Command{
		Use:   "create SOURCE",
		Short: "Register a source media reference as a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				project, err := client.CreateProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s\n", project.ID)
				return nil
			})
		},
	})

	projectCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				projects, err := client.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, projects)
				}
				spec := tableSpec{
					headers: []string{"ID", "Source", "Version", "Proxy", "Export", "Updated"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
					empty:   "No projects",
				}
				for _, p := range projects {
					spec.add(p.ID, p.SourceRef, formatVersion(p.CurrentVersion),
						formatVersion(p.LatestProxyVersion), formatVersion(p.LatestExportVersion),
						formatAPITime(p.UpdatedAt))
				}
				spec.print(cmd.OutOrStdout())
				return nil
			})
		},
	})

	projectCmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a project and its artifact pointers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				project, err := client.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, project)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project:         %s\n", project.ID)
				fmt.Fprintf(out, "Source:          %s\n", project.SourceRef)
				fmt.Fprintf(out, "Current version: %s\n", formatVersion(project.CurrentVersion))
				fmt.Fprintf(out, "Latest proxy:    %s %s\n", formatVersion(project.LatestProxyVersion), orDash(project.LatestProxyKey))
				fmt.Fprintf(out, "Latest export:   %s %s\n", formatVersion(project.LatestExportVersion), orDash(project.LatestExportKey))
				fmt.Fprintf(out, "Created:         %s\n", formatAPITime(project.CreatedAt))
				fmt.Fprintf(out, "Updated:         %s\n", formatAPITime(project.UpdatedAt))
				return nil
			})
		},
	})

	return projectCmd
}
