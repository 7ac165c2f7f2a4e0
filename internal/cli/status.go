package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/studychat/internal/config"
	"github.com/soyeahso/studychat/internal/store"
	"github.com/soyeahso/studychat/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show studychat status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "studychat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprint(out, " (not found, using defaults)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			fmt.Fprintf(out, "API:     %s", cfg.API.BaseURL)
			if cfg.API.Timeout > 0 {
				fmt.Fprintf(out, " timeout=%ds", cfg.API.Timeout)
			}
			fmt.Fprintln(out)

			driver := cfg.Store.Driver
			if driver == "memory" {
				fmt.Fprintln(out, "Store:   memory (nothing survives this process)")
			} else {
				fmt.Fprintf(out, "Store:   %s path=%s\n", driver, paths.StorePath(cfg.Store))
			}

			rasa := cfg.Backend.RasaURL
			if rasa == "" {
				rasa = "(none)"
			}
			fmt.Fprintf(out, "Backend: port=%d bind=%s rasa=%s\n", cfg.Backend.Port, cfg.Backend.Bind, rasa)
			fmt.Fprintln(out)

			st, closeStore, err := openStore()
			if err != nil {
				fmt.Fprintf(out, "Account: error opening store: %v\n", err)
			} else {
				defer closeStore()
				if name, ok := st.Get(store.KeyUsername); ok && name != "" {
					fmt.Fprintf(out, "Account: %s\n", activeStyle.Render(name))
				} else if _, ok := st.Get(store.KeyToken); ok {
					fmt.Fprintln(out, "Account: signed in")
				} else {
					fmt.Fprintln(out, "Account: not signed in")
				}
				if id, ok := st.Get(store.KeyActiveSession); ok && id != "" {
					fmt.Fprintf(out, "Session: %s\n", id)
				} else {
					fmt.Fprintln(out, "Session: (none)")
				}
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
