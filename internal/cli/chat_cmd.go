package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soyeahso/studychat/internal/conversation"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message in the active session and print the reply",
		Long:  "Send a message in the active session. When no session is active a new one is created, named after the message.",
		Args:  cobra.MinimumNArgs(1),
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
			if err := a.start(ctx); err != nil {
				return err
			}
			r := newREPL(a, cmd.OutOrStdout())
			r.spin = isTerminal(cmd.OutOrStdout())
			fitToTerminal(cmd.OutOrStdout())
			return r.send(ctx, strings.Join(args, " "))
		},
	}
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [message]",
		Short: "Start a new session, optionally sending a first message",
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
			if err := a.start(ctx); err != nil {
				return err
			}
			r := newREPL(a, cmd.OutOrStdout())
			if err := r.newChat(ctx); err != nil {
				return err
			}
			if message := strings.Join(args, " "); strings.TrimSpace(message) != "" {
				return r.send(ctx, message)
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the transcript of the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSignedIn(); err != nil {
				return err
			}

			if err := a.start(cmd.Context()); err != nil {
				return err
			}
			newREPL(a, cmd.OutOrStdout()).history()
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the study advisor",
		Args:  cobra.NoArgs,
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
			if err := a.start(ctx); err != nil {
				return err
			}

			r := newREPL(a, cmd.OutOrStdout())
			r.spin = isTerminal(cmd.OutOrStdout())
			fitToTerminal(cmd.OutOrStdout())
			return r.run(ctx, cmd.InOrStdin())
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// fitToTerminal wraps replies to the terminal width when w is a terminal.
func fitToTerminal(w io.Writer) {
	f, ok := w.(*os.File)
	if !ok {
		return
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
		wrapWidth = width - 4
	}
}

const replHelp = `Commands:
  /new               start a new session
  /sessions [text]   list sessions, optionally filtered by name
  /select <id>       switch to another session
  /clear             delete every session and start fresh
  /history           print the active session's transcript
  /quit              leave
Anything else is sent to the advisor.`

// repl drives a started app from text input.
type repl struct {
	app  *app
	out  io.Writer
	spin bool
}

func newREPL(a *app, out io.Writer) *repl {
	return &repl{app: a, out: out}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	name, _ := r.app.auth.Whoami()
	fmt.Fprintln(r.out, headerStyle.Render("studychat")+" "+hintStyle.Render("signed in as "+name+", /help for commands"))
	r.history()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, userStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("error: ")+err.Error())
		}
		if quit {
			return nil
		}
	}
}

// handle runs one line of input and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		fmt.Fprintln(r.out, replHelp)
	case "/new":
		return false, r.newChat(ctx)
	case "/sessions", "/ls":
		sessions := r.app.dir.List(ctx, arg)
		active, _ := r.app.dir.Active()
		renderSessions(r.out, sessions, active, arg)
	case "/select":
		if arg == "" {
			return false, errors.New("usage: /select <id>")
		}
		id := domain.SessionID(arg)
		if !domain.ContainsSession(r.app.dir.Snapshot(), id) {
			return false, fmt.Errorf("no session with id %s", id)
		}
		if err := r.app.dir.Select(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Switched to session %s\n", activeStyle.Render(string(id)))
		r.history()
	case "/clear":
		err := r.app.dir.ClearAll(ctx)
		if id := r.app.ctrl.ActiveID(); id != "" {
			fmt.Fprintf(r.out, "Started new session %s\n", activeStyle.Render(string(id)))
		}
		return false, err
	case "/history":
		r.history()
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", command)
	}
	return false, nil
}

// send delivers text and prints whatever the transcript gained besides the
// user's own entry.
func (r *repl) send(ctx context.Context, text string) error {
	before := len(r.app.ctrl.Transcript())

	stop := func() {}
	if r.spin {
		s := newSpinner(r.out)
		s.Start()
		stop = s.Stop
	}
	err := r.app.ctrl.Send(ctx, text)
	stop()
	if errors.Is(err, conversation.ErrEmptyMessage) {
		return errors.New("message is empty")
	}
	if err != nil {
		return err
	}

	after := r.app.ctrl.Transcript()
	if before > len(after) {
		before = 0
	}
	for _, m := range after[before:] {
		if m.Role == domain.RoleAssistant {
			renderMessage(r.out, m)
		}
	}
	return nil
}

func (r *repl) newChat(ctx context.Context) error {
	id, err := r.app.dir.NewChat(ctx, r.app.ctrl)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	fmt.Fprintf(r.out, "Started new session %s\n", activeStyle.Render(string(id)))
	return nil
}

func (r *repl) history() {
	if r.app.ctrl.State() == conversation.StateNoSession {
		fmt.Fprintln(r.out, hintStyle.Render("No active session. Type a message to start one."))
		return
	}
	renderTranscript(r.out, r.app.ctrl.Transcript())
}
