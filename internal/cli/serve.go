package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitebuilder/internal/api"
	"sitebuilder/internal/config"
	mcpserver "sitebuilder/internal/mcp"
	"sitebuilder/internal/service"
)

func newServeAPICmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-api",
		Short: "Serve the configured storage over HTTP",
		Long:  `Serve the configured storage as a REST API, so other sitebuilder processes can use it with --driver http.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			l := loggerFromContext(ctx)
			cfg := configFromContext(ctx)
			if cfg.Storage.Driver == "http" {
				return errors.New("serve-api needs a local storage driver, not http")
			}
			if addr == "" {
				addr = cfg.API.Addr
			}

			b, err := openBackend(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer b.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewServer(b, l).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				l.Info("listening", "addr", addr, "driver", cfg.Storage.Driver)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			l.Info("shutting down")
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the editor as an MCP server on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			l := loggerFromContext(ctx)
			cfg := configFromContext(ctx)

			b, err := openBackend(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer b.Close()

			ed := service.NewEditorService(b, service.LogEmitter{Log: l}, editorOptions(cfg), l)
			defer func() {
				fctx, fcancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer fcancel()
				if err := ed.CloseAll(fctx); err != nil {
					l.Error("flush on exit failed", "err", err)
				}
			}()

			if watch {
				path := g.configPath
				if path == "" {
					path = config.DefaultPath()
				}
				w, err := config.Watch(path, func(c *config.Config) {
					ed.SetDebounce(c.Autosave.Debounce.Duration)
				}, l)
				if err != nil {
					l.Warn("config watch disabled", "err", err)
				} else {
					defer w.Close()
				}
			}

			srv := mcpserver.New(mcpserver.Deps{Editor: ed, Logger: l, Version: version})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ServeStdio() }()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch-config", true, "reload autosave settings when the config file changes")
	return cmd
}
