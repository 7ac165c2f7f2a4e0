package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/soyeahso/studychat/internal/config"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	apiURL   string

	// loaded at init time
	paths     config.Paths
	cfg       config.Config
	log       *logging.Logger
	logCloser io.Closer
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studychat",
		Short: "studychat, a terminal client for the study advisor",
		Long:  "studychat talks to the study-advisory chatbot backend and keeps your conversation sessions in sync across runs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			// .env in the working directory wins over the one in the home dir
			if _, err := config.LoadDotEnv(".env", paths.Env); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
			}

			cfg, err = config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
				cfg = config.Defaults()
			}
			if apiURL != "" {
				cfg.API.BaseURL = apiURL
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			log, logCloser, err = logging.Open(logging.Options{
				Level: cfg.Logging.Level,
				File:  cfg.Logging.File,
				Style: cfg.Logging.ConsoleStyle,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.studychat/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "chatbot backend URL (overrides api.baseUrl)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newNewCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
	}
	return err
}
