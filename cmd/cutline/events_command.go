package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cutline/internal/api"
	"cutline/internal/notifications"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream job and GC lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				seen := 0
				out := cmd.OutOrStdout()
				return client.Events(cmd.Context(), func(msg notifications.Message) bool {
					if ctx.jsonOutput() {
						encoded, err := json.Marshal(msg)
						if err == nil {
							fmt.Fprintln(out, string(encoded))
						}
					} else {
						fmt.Fprintln(out, formatEvent(msg))
					}
					seen++
					return limit <= 0 || seen < limit
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many events (0 streams until interrupted)")
	return cmd
}

func formatEvent(msg notifications.Message) string {
	keys := make([]string, 0, len(msg.Payload))
	for key := range msg.Payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, msg.Payload[key]))
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s %-14s", ts.Local().Format(time.TimeOnly), msg.Event)
	if len(parts) > 0 {
		line += " " + strings.Join(parts, " ")
	}
	return line
}
