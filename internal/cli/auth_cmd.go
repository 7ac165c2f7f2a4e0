package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			var err error
			if username, err = p.orPrompt(username, "Username", false); err != nil {
				return err
			}
			if email, err = p.orPrompt(email, "Email", false); err != nil {
				return err
			}
			if password, err = p.orPrompt(password, "Password", true); err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s\n", activeStyle.Render(resp.Username))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a username or email address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			var err error
			if username, err = p.orPrompt(username, "Username or email", false); err != nil {
				return err
			}
			if password, err = p.orPrompt(password, "Password", true); err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.auth.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", activeStyle.Render(resp.Username))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username or email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential and active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			name, ok := a.auth.Whoami()
			if !ok {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			if !remote {
				fmt.Fprintln(out, name)
				return nil
			}

			profile, err := a.auth.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s <%s> (id %d)\n", profile.Username, profile.Email, profile.UserID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "ask the backend instead of reading the local store")
	return cmd
}
