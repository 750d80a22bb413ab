package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/melih/oldcc/internal/adapters/builder"
)

func newCleanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove containers left behind by interrupted compiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.newEngine(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			removed, err := c.compiler(eng, c.imageBuilder(eng)).Clean(cmd.Context())
			out := cmd.OutOrStdout()
			for _, ctr := range removed {
				fmt.Fprintf(out, "%s removed %s (%s)\n", color.GreenString("✓"), ctr.Name, ctr.ID)
			}
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(out, "Nothing to clean")
			}
			return nil
		},
	}
}

func newDockerfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dockerfile",
		Short: "Print the built-in toolchain Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(builder.DefaultDockerfile())
			return err
		},
	}
}
