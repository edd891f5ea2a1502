// Package commands is the local-explorer command line.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
	slogctx "github.com/veqryn/slog-context"

	"github.com/oneyeking31/local-explorer/config"
	"github.com/oneyeking31/local-explorer/logging"
)

// rootOptions is shared by every subcommand once the root has loaded it
type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func New(version string) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "local-explorer",
		Short: "Weather-aware activity explorer",
		Long: `local-explorer runs the API backend that combines weather, activity
suggestions and nearby places, and the development gateway that serves the
single-page app and forwards /api to the backend.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	pflags.StringVar(&opts.envFile, "env-file", "", "dotenv file read before the environment (default .env if present)")
	pflags.StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	pflags.StringVar(&opts.logFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(newBackendCmd(opts))
	cmd.AddCommand(newDevCmd(opts))
	cmd.AddCommand(newRenderCmd(opts))
	cmd.AddCommand(newCheckSecretsCmd(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.WithConfigFile(o.configFile), config.WithEnvFile(o.envFile))
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}

	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	cmd.SetContext(slogctx.NewCtx(cmd.Context(), logger))

	o.cfg = cfg
	o.logger = logger
	return nil
}
