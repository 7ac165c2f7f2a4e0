package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/reflow/wordwrap"

	"github.com/soyeahso/studychat/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// wrapWidth is the column messages are wrapped at; 0 disables wrapping.
var wrapWidth int

// renderTranscript writes every transcript entry, oldest first.
func renderTranscript(w io.Writer, msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, hintStyle.Render("No messages yet. Say hello!"))
		return
	}
	for _, m := range msgs {
		renderMessage(w, m)
	}
}

func renderMessage(w io.Writer, m domain.Message) {
	label := userStyle.Render("You")
	if m.Role == domain.RoleAssistant {
		label = assistantStyle.Render("Advisor")
	}
	text := m.Text
	if wrapWidth > 0 {
		text = wordwrap.String(text, wrapWidth)
	}
	text = strings.ReplaceAll(text, "\n", "\n  ")
	fmt.Fprintf(w, "%s: %s\n", label, text)
}

// renderSessions writes the session list as a table, marking the active one.
func renderSessions(w io.Writer, sessions []domain.Session, active domain.SessionID, search string) {
	if len(sessions) == 0 {
		if search != "" {
			fmt.Fprintln(w, hintStyle.Render(fmt.Sprintf("No sessions match %q.", search)))
		} else {
			fmt.Fprintln(w, hintStyle.Render("No sessions yet."))
		}
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	for _, s := range sessions {
		marker := " "
		name := s.Name
		if s.ID == active {
			marker = activeStyle.Render("*")
			name = activeStyle.Render(name)
		}
		t.AppendRow(table.Row{marker, idStyle.Render(string(s.ID)), name})
	}
	t.Render()
}

// newSpinner returns the busy indicator shown while a message is in flight.
func newSpinner(w io.Writer) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " thinking..."
	return s
}
