package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/studychat/internal/backend"
	"github.com/soyeahso/studychat/internal/config"
	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
)

func newServeCmd() *cobra.Command {
	var (
		port        int
		bind        string
		rasaURL     string
		autoRestart bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference chatbot backend",
		Long:  "Run a self-contained chatbot backend with accounts, sessions and stored exchanges. Answers come from a Rasa webhook when one is configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				cfg.Backend.Port = port
			}
			if bind != "" {
				cfg.Backend.Bind = bind
			}
			if rasaURL != "" {
				cfg.Backend.RasaURL = rasaURL
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			if autoRestart {
				go autorestart.RestartOnChange()
			}

			dbPath := paths.BackendDatabasePath(cfg.Backend)
			repo, err := backend.OpenRepository(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer repo.Close()
			log.Info().Str("path", dbPath).Msg("using backend database")

			srv := backend.New(cfg.Backend, repo, buildResponder(cfg.Backend), log)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides backend.port)")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback, lan or custom (overrides backend.bind)")
	cmd.Flags().StringVar(&rasaURL, "rasa-url", "", "Rasa REST webhook URL (overrides backend.rasaUrl)")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "restart the server when its binary changes")

	return cmd
}

// buildResponder chains the configured answer sources. Rasa is asked first,
// then the static answer; the apology covers the rest.
func buildResponder(bc config.BackendConfig) backend.Responder {
	var chain []backend.Responder
	if bc.RasaURL != "" {
		timeout := time.Duration(bc.RasaTimeout) * time.Second
		chain = append(chain, backend.NewRasaResponder(bc.RasaURL, timeout, log))
		log.Info().Str("url", bc.RasaURL).Msg("answering with Rasa")
	}
	if bc.StaticAnswer != "" {
		chain = append(chain, backend.StaticResponder{Answer: bc.StaticAnswer})
	}
	if len(chain) == 0 {
		log.Warn().Msg("no answer source configured; every message gets the fallback answer")
	}
	return backend.NewFallbackResponder(log, chain...)
}
