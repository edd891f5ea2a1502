package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oneyeking31/local-explorer/backend"
	"github.com/oneyeking31/local-explorer/devserver"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newBackendCmd(o *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Serve the weather, suggestions and places API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				o.cfg.Backend.Listen = listen
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv, err := backend.New(ctx, o.cfg, backend.WithLogger(o.logger))
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides backend.listen)")
	return cmd
}

func newDevCmd(o *rootOptions) *cobra.Command {
	var listen, root, proxyConfig string

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Serve the single-page app and proxy the API prefixes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				o.cfg.Dev.Listen = listen
			}
			if root != "" {
				o.cfg.Dev.Root = root
			}
			if proxyConfig != "" {
				o.cfg.Dev.ProxyConfig = proxyConfig
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv, err := devserver.New(o.cfg, devserver.WithLogger(o.logger))
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", "", "listen address (overrides dev.listen)")
	flags.StringVar(&root, "root", "", "app directory (overrides dev.root)")
	flags.StringVar(&proxyConfig, "proxy-config", "", "dev server YAML or JSON document (overrides dev.proxy_config)")
	return cmd
}
