package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation's current processing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.Conversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			kind := statusInfo
			switch view.Status {
			case "completed":
				kind = statusOK
			case "failed":
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Conversation", statusInfo, view.ID, colorize))
			fmt.Fprintln(out, renderStatusLine("User", statusInfo, view.UserID, colorize))
			fmt.Fprintln(out, renderStatusLine("Mode", statusInfo, view.Mode, colorize))
			fmt.Fprintln(out, renderStatusLine("Recording", statusInfo, view.RecordingType, colorize))
			fmt.Fprintln(out, renderStatusLine("Status", kind, view.Status, colorize))
			if view.ErrorDetail != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusWarn, view.ErrorDetail, colorize))
			}

			if len(view.Parts) > 0 {
				rows := make([][]string, 0, len(view.Parts))
				for _, part := range view.Parts {
					audio := "-"
					if part.HasAudio {
						audio = "stored"
					}
					rows = append(rows, []string{
						part.SlotKey,
						part.Status,
						audio,
						truncate(part.ErrorDetail, 60),
					})
				}
				table := renderTable(
					[]string{"Slot", "Status", "Audio", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
			}

			if view.Result != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, view.Result)
			}
			return nil
		},
	}
}
