package admincli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/healthvault/internal/server/services"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending schema migrations",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rm, _, err := rootOpts.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer rm.Close()

			if err := rm.RunMigrations(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return rootOpts.output(cmd.OutOrStdout(), map[string]string{"status": "ok"}, func(w io.Writer) {
				fmt.Fprintln(w, "migrations applied")
			})
		},
	}
}

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	Fix bool
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find reports whose backing file is missing",
		Long: `Check every report's backing file in the configured file store.

Reports whose file is gone are listed. With --fix those report rows are
deleted, which also removes their vitals and share grants.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rm, c, err := rootOpts.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer rm.Close()

			files, err := openFileStore(ctx, c)
			if err != nil {
				return fmt.Errorf("open file store: %w", err)
			}

			res, err := services.NewReconciler(rm, files, rootOpts.logger(cmd)).Run(ctx, opts.Fix)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "checked %d reports, %d missing files, %d removed\n", res.Checked, len(res.Missing), res.Removed)
				for _, m := range res.Missing {
					fmt.Fprintf(w, "  %s\t%s\t%s\n", m.ReportID, m.UserID, m.FilePath)
				}
				if len(res.Invalid) > 0 {
					fmt.Fprintf(w, "%d reports with invalid file references (not removed)\n", len(res.Invalid))
					for _, m := range res.Invalid {
						fmt.Fprintf(w, "  %s\t%s\t%q\n", m.ReportID, m.UserID, m.FilePath)
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Fix, "fix", false, "delete reports whose file is missing")
	return cmd
}

func NewPurgeTokensCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge-tokens",
		Short:         "Delete expired refresh tokens",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rm, c, err := rootOpts.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer rm.Close()

			files, err := openFileStore(ctx, c)
			if err != nil {
				return fmt.Errorf("open file store: %w", err)
			}
			n, err := services.NewUserService(rm, files, rootOpts.logger(cmd), c).PurgeExpiredTokens(ctx)
			if err != nil {
				return fmt.Errorf("purge tokens: %w", err)
			}
			return rootOpts.output(cmd.OutOrStdout(), map[string]int64{"purged": n}, func(w io.Writer) {
				fmt.Fprintf(w, "purged %d expired tokens\n", n)
			})
		},
	}
}
