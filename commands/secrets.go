package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneyeking31/local-explorer/apikeys"
)

func newCheckSecretsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-secrets [dir...]",
		Short: "Fail when source files carry a literal maps API key",
		Long: `check-secrets scans source files under each dir (default dev.root) for
Google API keys written into the code. Keys belong in the build environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := args
			if len(roots) == 0 {
				roots = []string{o.cfg.Dev.Root}
			}

			findings, err := apikeys.ScanForLiteralKeys(roots...)
			if err != nil {
				return err
			}
			for _, f := range findings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%d: literal api key %s\n", f.Path, f.Line, f.Key)
			}
			if len(findings) > 0 {
				return fmt.Errorf("found %d literal api key(s); read the key from %s instead", len(findings), o.cfg.Maps.BuildVar)
			}

			o.logger.Info("no literal api keys found", "roots", roots)
			return nil
		},
	}
}
