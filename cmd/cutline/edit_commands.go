package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cutline/internal/api"
	"cutline/internal/edl"
)

func newEditCommand(ctx *commandContext) *cobra.Command {
	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Append to and inspect the edit log",
	}
	editCmd.AddCommand(newEditAppendCommand(ctx))

	editCmd.AddCommand(&cobra.Command{
		Use:   "history PROJECT",
		Short: "Show the edit log of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entries)
				}
				spec := tableSpec{
					headers: []string{"Version", "Ops", "Created"},
					aligns:  []columnAlignment{alignRight, alignLeft, alignLeft},
					empty:   "No edits",
				}
				for _, entry := range entries {
					spec.add(formatVersion(entry.Version), summarizeOps(entry.Ops), formatAPITime(entry.CreatedAt))
				}
				spec.print(cmd.OutOrStdout())
				return nil
			})
		},
	})
	return editCmd
}

func newEditAppendCommand(ctx *commandContext) *cobra.Command {
	var file string
	var base int64
	cmd := &cobra.Command{
		Use:   "append PROJECT",
		Short: "Append edit instructions read from a JSON or YAML file",
		Long: "Append edit instructions on top of --base. The file may be a list of ops or an\n" +
			"{ops: [...]} document; use --file - to read JSON from stdin. Without --base the\n" +
			"project's current version is used.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := readOps(cmd, file)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				baseVersion := base
				if !cmd.Flags().Changed("base") {
					project, err := client.GetProject(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					baseVersion = project.CurrentVersion
				}
				resp, err := client.Append(cmd.Context(), args[0], baseVersion, ops)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Committed %s\n", formatVersion(resp.Version))
				if resp.ProxyError != "" {
					fmt.Fprintf(out, "Proxy not queued: %s\n", resp.ProxyError)
				} else if resp.JobID != "" {
					fmt.Fprintf(out, "Proxy job %s queued\n", resp.JobID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Instruction file (- for stdin)")
	cmd.Flags().Int64Var(&base, "base", 0, "Version the edit was made against")
	return cmd
}

func readOps(cmd *cobra.Command, path string) ([]edl.Op, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return edl.Decode(cmd.InOrStdin(), edl.FormatJSON)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instructions: %w", err)
	}
	defer f.Close()
	return edl.Decode(f, edl.FormatForPath(path))
}

func summarizeOps(ops []edl.Op) string {
	if len(ops) == 0 {
		return "-"
	}
	types := make([]string, 0, len(ops))
	for _, op := range ops {
		types = append(types, op.Type)
	}
	summary := strings.Join(types, ", ")
	if len(summary) > 60 {
		summary = summary[:57] + "..."
	}
	return summary
}
