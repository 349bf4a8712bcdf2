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

// Prompter reads panel input. Secrets are read without echo when the input
// is a terminal.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
	fd     int
	tty    bool

	readPassword func(fd int) ([]byte, error)
}

// NewPrompter reads from in and writes prompts to out. If in is a terminal,
// secret prompts disable echo.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		reader:       bufio.NewReader(in),
		out:          out,
		fd:           -1,
		readPassword: term.ReadPassword,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// IsTerminal reports whether input comes from a terminal.
func (p *Prompter) IsTerminal() bool {
	return p.tty
}

// ReadLine returns the next input line without its line ending. io.EOF is
// returned only when no input remains.
func (p *Prompter) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Ask prints label and reads one line.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.ReadLine()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.TrimRight(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prints label and reads one line without echo.
func (p *Prompter) Secret(label string) (string, error) {
	if !p.tty {
		return p.Ask(label)
	}

	fmt.Fprint(p.out, label)
	b, err := p.readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.TrimRight(label, ": "), err)
	}
	return strings.TrimSpace(string(b)), nil
}

// splitArgs splits a panel line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
