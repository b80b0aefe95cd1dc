package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cutline/internal/api"
	"cutline/internal/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var version int64
	cmd := &cobra.Command{
		Use:       "render PROJECT proxy|export",
		Short:     "Queue a proxy or export render",
		Long:      "Queue a render of --version, or the project's current version when unset.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(render.KindProxy), string(render.KindExport)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := render.ParseKind(args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.RequestRender(cmd.Context(), args[0], version, string(kind))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s render of %s (job %s)\n", kind, formatVersion(job.Version), job.ID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "Version to render (default current)")
	return cmd
}
