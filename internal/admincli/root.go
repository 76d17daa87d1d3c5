// Package admincli implements vaultadmin, the operator CLI for schema
// migrations, file/row reconciliation and token housekeeping.
package admincli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/healthvault/internal/logging"
	"github.com/dmitrijs2005/healthvault/internal/server/config"
	"github.com/dmitrijs2005/healthvault/internal/server/filestore"
	"github.com/dmitrijs2005/healthvault/internal/server/repositories/repomanager"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DSN        string
	Format     string // "json" | "text"
	Verbose    bool
}

var ValidFormats = []string{"text", "json"}

// Seams for tests.
var (
	openRepositoryManager = repomanager.New
	openFileStore         = filestore.New
)

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vaultadmin",
		Short: "HealthVault operator tools",
		Long:  "Operator commands for a HealthVault deployment: schema migrations, report file reconciliation and token cleanup.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "server config file (JSON or YAML)")
	cmd.PersistentFlags().StringVarP(&opts.DSN, "dsn", "d", "", "PostgreSQL DSN, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewPurgeTokensCommand(opts))

	return cmd
}

// loadConfig applies defaults, then the config file, then --dsn.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := &config.Config{}
	c.LoadDefaults()
	if o.ConfigPath != "" {
		if err := config.ReadFile(o.ConfigPath, c); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("dsn") {
		c.DatabaseDSN = o.DSN
	}
	return c, nil
}

func (o *RootOptions) logger(cmd *cobra.Command) logging.Logger {
	if !o.Verbose {
		return logging.Nop{}
	}
	return logging.NewJSONLogger(cmd.ErrOrStderr(), "debug")
}

func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command) (repomanager.RepositoryManager, *config.Config, error) {
	c, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	rm, err := openRepositoryManager(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return rm, c, nil
}

// output writes v as JSON, or the text rendering, depending on --format.
func (o *RootOptions) output(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
