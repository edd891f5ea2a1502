package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/devserver"
)

func newRenderCmd(o *rootOptions) *cobra.Command {
	var asJSON, showKey bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the host page with the app mounted",
		Long: `render prints the page the dev server would serve at /, or with --json
only the bootstrap document. The maps key is redacted unless --show-key is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := devserver.New(o.cfg, devserver.WithLogger(o.logger))
			if err != nil {
				return err
			}

			var out string
			if asJSON {
				doc, err := json.MarshalIndent(srv.App().Document(nil), "", "  ")
				if err != nil {
					return err
				}
				out = string(doc) + "\n"
			} else {
				res, err := srv.RenderIndex()
				if err != nil {
					return err
				}
				if !res.Mounted {
					o.logger.Warn("anchor not found; page printed unchanged", "anchor", res.Anchor)
				}
				out = string(res.Page)
			}

			if key := srv.MapsKey().Key; key != "" && !showKey {
				out = strings.ReplaceAll(out, key, apikeys.Redact(key))
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print only the bootstrap document")
	cmd.Flags().BoolVar(&showKey, "show-key", false, "print the maps key unredacted")
	return cmd
}
