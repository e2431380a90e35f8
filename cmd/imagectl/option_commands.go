package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelnote/internal/options"
)

func newOptionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "option",
		Short: "Read and write stored image options",
	}
	cmd.AddCommand(newOptionGetCommand(ctx), newOptionSetCommand(ctx))
	return cmd
}

func newOptionGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print the effective value of an option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := checkOptionName(name); err != nil {
				return err
			}

			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}

			var value any
			if name == options.CompressImages {
				value, err = a.Options.Bool(cmd.Context(), name)
			} else {
				value, err = a.Options.Int(cmd.Context(), name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", name, value)
			return nil
		},
	}
}

func newOptionSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Persist an option next to the notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, value := args[0], args[1]
			if err := checkOptionName(name); err != nil {
				return err
			}

			a, err := ctx.application(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store.SetOption(cmd.Context(), name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, value)
			return nil
		},
	}
}

func checkOptionName(name string) error {
	known := []string{options.ImageMaxWidthHeight, options.ImageJpegQuality, options.CompressImages}
	if !slices.Contains(known, name) {
		return fmt.Errorf("unknown option %q (known: %v)", name, known)
	}
	return nil
}
