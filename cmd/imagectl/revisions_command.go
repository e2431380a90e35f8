package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRevisionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <note-id>",
		Short: "List stored revisions of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}

			revisions, err := a.Store.ListRevisions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(revisions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No revisions")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Revision", "Created", "MIME", "Size", "Protected", "BLAKE3"})
			for _, rev := range revisions {
				tw.AppendRow(table.Row{
					rev.ID,
					rev.CreatedAt.Local().Format(time.DateTime),
					rev.Mime,
					humanize.Bytes(uint64(len(rev.Content))),
					rev.IsProtected,
					shortHash(rev.ContentHash),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
