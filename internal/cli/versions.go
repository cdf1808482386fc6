package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/service"
	"sitebuilder/internal/versions"
)

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage page versions",
	}
	cmd.AddCommand(newVersionsListCmd())
	cmd.AddCommand(newVersionsCreateCmd())
	cmd.AddCommand(newVersionsRollbackCmd())
	return cmd
}

// withSession opens page, runs fn, then flushes and closes it.
func withSession(ctx context.Context, page string, fn func(*service.Session) error) error {
	l := loggerFromContext(ctx)
	cfg := configFromContext(ctx)
	b, err := openBackend(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := editorOptions(cfg)
	opts.AutoSnapshot = ""
	ed := service.NewEditorService(b, service.LogEmitter{Log: l}, opts, l)
	sess, err := ed.Open(ctx, page)
	if err != nil {
		return err
	}
	runErr := fn(sess)
	if err := ed.CloseAll(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newVersionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <page>",
		Short: "List versions of a page, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, configFromContext(ctx), loggerFromContext(ctx))
			if err != nil {
				return err
			}
			defer b.Close()

			vs, err := b.ListVersions(ctx, args[0])
			if err != nil {
				return err
			}
			versions.SortNewestFirst(vs)
			return printVersions(cmd.OutOrStdout(), vs)
		},
	}
}

func newVersionsCreateCmd() *cobra.Command {
	var label, description, tag string
	cmd := &cobra.Command{
		Use:   "create <page>",
		Short: "Snapshot the current state of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), args[0], func(s *service.Session) error {
				v, err := s.Snapshot(cmd.Context(), label, description, tag)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", v.ID, v.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "version label (default v<N+1>)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "tag")
	return cmd
}

func newVersionsRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <page> <version-id>",
		Short: "Restore a page to a stored version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), args[0], func(s *service.Session) error {
				st, err := s.Rollback(cmd.Context(), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d blocks\n", len(st.Blocks))
				return nil
			})
		},
	}
}

func printVersions(w io.Writer, vs []domain.Version) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tTAG\tCREATED\tDESCRIPTION")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.Version, v.Tag, v.CreatedAt.Local().Format(time.DateTime), v.Description)
	}
	return tw.Flush()
}
