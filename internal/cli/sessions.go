package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/studychat/internal/domain"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List, select and clear conversation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsSelectCmd())
	cmd.AddCommand(newSessionsClearCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSignedIn(); err != nil {
				return err
			}

			sessions := a.dir.List(cmd.Context(), search)
			active, _ := a.dir.Active()
			renderSessions(cmd.OutOrStdout(), sessions, active, search)
			return nil
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show sessions whose name contains this text")
	return cmd
}

func newSessionsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a session the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSignedIn(); err != nil {
				return err
			}

			ctx := cmd.Context()
			id := domain.SessionID(strings.TrimSpace(args[0]))
			sessions := a.dir.List(ctx, "")
			if !domain.ContainsSession(sessions, id) {
				return fmt.Errorf("no session with id %s", id)
			}
			if err := a.dir.Select(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active session: %s\n", activeStyle.Render(string(id)))
			return nil
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every session and start a fresh one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
				answer, err := p.prompt("Delete all sessions? [y/N]")
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSignedIn(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.start(ctx); err != nil {
				return err
			}
			clearErr := a.dir.ClearAll(ctx)

			out := cmd.OutOrStdout()
			if clearErr != nil {
				fmt.Fprintln(out, errorStyle.Render("Sessions could not be deleted on the server."))
			} else {
				fmt.Fprintln(out, "All sessions deleted.")
			}
			if id := a.ctrl.ActiveID(); id != "" {
				fmt.Fprintf(out, "Started new session %s\n", activeStyle.Render(string(id)))
			}
			return clearErr
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
