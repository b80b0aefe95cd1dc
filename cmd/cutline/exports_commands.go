package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cutline/internal/api"
)

func newExportsCommand(ctx *commandContext) *cobra.Command {
	exportsCmd := &cobra.Command{
		Use:     "exports",
		Aliases: []string{"export"},
		Short:   "List and pin export artifacts",
	}

	exportsCmd.AddCommand(&cobra.Command{
		Use:   "list PROJECT",
		Short: "List the exports of a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				exports, err := client.ListExports(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, exports)
				}
				printExports(cmd, exports)
				return nil
			})
		},
	})

	exportsCmd.AddCommand(&cobra.Command{
		Use:   "latest PROJECT",
		Short: "Show the newest live export of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				export, err := client.LatestExport(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, export)
				}
				printExports(cmd, []api.Export{export})
				return nil
			})
		},
	})

	exportsCmd.AddCommand(newPinCommand(ctx, true))
	exportsCmd.AddCommand(newPinCommand(ctx, false))
	return exportsCmd
}

func newPinCommand(ctx *commandContext, pin bool) *cobra.Command {
	use, short := "pin ID", "Protect an export from garbage collection"
	if !pin {
		use, short = "unpin ID", "Allow an export to be garbage collected again"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				call := client.Pin
				if !pin {
					call = client.Unpin
				}
				export, err := call(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, export)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Export %s pinned: %s\n", export.ID, yesNo(export.Pinned))
				return nil
			})
		},
	}
}

func printExports(cmd *cobra.Command, exports []api.Export) {
	spec := tableSpec{
		headers: []string{"ID", "Version", "Status", "Pinned", "Size", "Resolution", "Created"},
		aligns:  []columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		empty:   "No exports",
	}
	for _, e := range exports {
		spec.add(e.ID, formatVersion(e.Version), label(e.Status), yesNo(e.Pinned),
			formatBytes(e.Size), orDash(e.Resolution), formatAPITime(e.CreatedAt))
	}
	spec.print(cmd.OutOrStdout())
}
