package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			runningKind := statusWarn
			runningText := "stopped"
			if status.Running {
				runningKind = statusOK
				runningText = "running"
			}
			fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, runningText, colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Connections", statusInfo, strconv.Itoa(status.Connections), colorize))

			if len(status.Queue) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			rows := make([][]string, 0, len(status.Queue))
			for _, stats := range status.Queue {
				rows = append(rows, []string{
					stats.Kind,
					strconv.Itoa(stats.Pending),
					strconv.Itoa(stats.Running),
					strconv.Itoa(stats.Done),
					strconv.Itoa(stats.Dead),
				})
			}
			table := renderTable(
				[]string{"Kind", "Pending", "Running", "Done", "Dead"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}
