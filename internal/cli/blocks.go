package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitebuilder/internal/domain"
)

func newBlocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect page blocks",
	}
	cmd.AddCommand(newBlocksListCmd())
	return cmd
}

func newBlocksListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <page>",
		Short: "List the blocks of a page in document order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := loggerFromContext(ctx)
			b, err := openBackend(ctx, configFromContext(ctx), l)
			if err != nil {
				return err
			}
			defer b.Close()

			blocks, err := b.ListBlocks(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(blocks)
			}
			return printBlocks(cmd.OutOrStdout(), blocks)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printBlocks(w io.Writer, blocks []domain.Block) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tZ\tID\tTYPE\tFLAGS")
	for _, b := range blocks {
		flags := ""
		if !b.Visible {
			flags += "hidden "
		}
		if b.Locked {
			flags += "locked"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", b.Order, b.ZOrder, b.ID, b.Type, flags)
	}
	return tw.Flush()
}
