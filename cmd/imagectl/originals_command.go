package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelnote/internal/images"
)

var errArchiveDisabled = errors.New("original upload archive is disabled (set PIXELNOTE_ARCHIVE_ENABLED=true)")

func newOriginalsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "originals <note-id>",
		Short: "List archived original uploads of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}
			if a.Archive == nil {
				return errArchiveDisabled
			}

			prefix := images.ArchivePrefix(args[0])
			objects, err := a.Archive.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if len(objects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived originals")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"File", "Size", "Archived"})
			for _, obj := range objects {
				tw.AppendRow(table.Row{
					strings.TrimPrefix(obj.Key, prefix),
					humanize.Bytes(uint64(obj.Size)),
					humanize.Time(obj.LastModified.In(time.Local)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
			return nil
		},
	}
}
