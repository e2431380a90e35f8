package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelnote/internal/images"
	"github.com/dunamismax/pixelnote/internal/store"
)

func newSaveCommand(ctx *commandContext) *cobra.Command {
	var (
		parentID string
		shrink   bool
	)

	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Create an image note from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}

			saved, err := a.Images.SaveImage(cmd.Context(), parentID, data, filepath.Base(args[0]), shrink)
			if err != nil {
				return err
			}
			result, err := saved.Commit.Wait(cmd.Context())
			if err != nil {
				return fmt.Errorf("note %s created but content was not stored: %w", saved.NoteID, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s as note %s\n", saved.FileName, saved.NoteID)
			printCommitResult(cmd, result)
			fmt.Fprintf(out, "URL: %s\n", saved.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", store.RootNoteID, "Parent note id")
	cmd.Flags().BoolVar(&shrink, "shrink", true, "Shrink large raster images before storing")
	return cmd
}

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update <note-id> <file>",
		Short: "Replace the content of an image note, keeping a revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}

			commit, err := a.Images.UpdateImage(cmd.Context(), args[0], data, filepath.Base(args[1]))
			if err != nil {
				return err
			}
			result, err := commit.Wait(cmd.Context())
			if err != nil {
				return fmt.Errorf("revision stored but new content was not: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated note %s\n", args[0])
			printCommitResult(cmd, result)
			return nil
		},
	}
}

func printCommitResult(cmd *cobra.Command, result images.CommitResult) {
	out := cmd.OutOrStdout()
	if result.Queued() {
		fmt.Fprintf(out, "Queued as task %s\n", result.TaskID)
		return
	}
	fmt.Fprintf(out, "Format: %s (%s)\n", result.Format, result.Mime)
	fmt.Fprintf(out, "Outcome: %s, %s -> %s\n",
		result.Outcome,
		humanize.Bytes(uint64(result.OriginalBytes)),
		humanize.Bytes(uint64(result.StoredBytes)),
	)
}
