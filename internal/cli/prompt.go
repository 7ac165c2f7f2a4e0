package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers for interactive commands. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (p *prompter) prompt(message string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", message)
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) secret(message string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.prompt(message)
	}

	fmt.Fprintf(p.out, "%s: ", message)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return string(password), nil
}

// orPrompt returns value when set, otherwise asks for it.
func (p *prompter) orPrompt(value, message string, secret bool) (string, error) {
	if value != "" {
		return value, nil
	}
	if secret {
		return p.secret(message)
	}
	return p.prompt(message)
}
