package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"sitebuilder/internal/config"
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion records build information shown by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// globalFlags are shared by every command.
type globalFlags struct {
	verbose    bool
	configPath string
	driver     string
	dsn        string
}

// Execute runs the sitebuilder CLI.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:          "sitebuilder",
		Short:        "sitebuilder edits block-based web pages",
		Long:         `sitebuilder is the editing core of a block-based page builder: blocks, selection, alignment, autosave and versions over SQL, MongoDB or a remote API.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.driver != "" {
				cfg.Storage.Driver = g.driver
			}
			if g.dsn != "" {
				cfg.Storage.DSN = g.dsn
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := charmlog.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			if g.verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			ctx = withConfig(ctx, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("sitebuilder %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&g.driver, "driver", "", "storage driver: sqlite, postgres, mysql, mongo or http")
	root.PersistentFlags().StringVar(&g.dsn, "dsn", "", "storage DSN or API base URL")

	root.AddCommand(newServeAPICmd())
	root.AddCommand(newMCPCmd(g))
	root.AddCommand(newBlocksCmd())
	root.AddCommand(newVersionsCmd())

	return root
}

const configKey ctxKey = 1

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

func configFromContext(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey).(*config.Config); ok {
		return c
	}
	c := &config.Config{}
	c.LoadDefaults()
	return c
}
