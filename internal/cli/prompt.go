package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

var errNotInteractive = errors.New("stdin is not a terminal")

// prompter asks for values the flags left out. Without a terminal every prompt fails, so
// scripted runs must pass all required flags.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	fd          int
	interactive bool
}

func newPrompter() *prompter {
	fd := os.Stdin.Fd()
	return &prompter{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		fd:          int(fd),
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// require fills *value with a prompted line when it is empty.
func (p *prompter) require(value *string, flag, label string) error {
	if strings.TrimSpace(*value) != "" {
		return nil
	}
	if !p.interactive {
		return fmt.Errorf("--%s is required: %w", flag, errNotInteractive)
	}
	for {
		line, err := p.line(label + ": ")
		if err != nil {
			return err
		}
		if line != "" {
			*value = line
			return nil
		}
		color.Yellow("⚠ A value is required.")
	}
}

func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. An empty answer takes def.
func (p *prompter) confirm(question string, def bool) (bool, error) {
	if !p.interactive {
		return def, nil
	}
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		answer, err := p.line(fmt.Sprintf("%s %s ", question, hint))
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// choose asks for one of choices by number or by name.
func (p *prompter) choose(label string, choices []string) (string, error) {
	if len(choices) == 0 {
		return "", fmt.Errorf("no %s to choose from", strings.ToLower(label))
	}
	if !p.interactive {
		return "", fmt.Errorf("%s must be given: %w", strings.ToLower(label), errNotInteractive)
	}

	color.Cyan("%s:", label)
	for i, c := range choices {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, c)
	}
	for {
		answer, err := p.line("Select: ")
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
			return choices[n-1], nil
		}
		for _, c := range choices {
			if c == answer {
				return c, nil
			}
		}
		color.Yellow("⚠ Invalid selection %q.", answer)
	}
}

// password reads a password without echo. policy is shown first when set, and confirm asks
// for the password twice.
func (p *prompter) password(label, policy string, confirm bool) (string, error) {
	if !p.interactive {
		return "", fmt.Errorf("%s must be given: %w", strings.ToLower(label), errNotInteractive)
	}
	if policy != "" {
		color.Cyan("Password policy: %s", policy)
	}
	for {
		first, err := p.secret(label + ": ")
		if err != nil {
			return "", err
		}
		if first == "" {
			color.Yellow("⚠ Password cannot be empty.")
			continue
		}
		if !confirm {
			return first, nil
		}
		second, err := p.secret("Confirm " + strings.ToLower(label) + ": ")
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		color.Yellow("⚠ Passwords do not match.")
	}
}

func (p *prompter) secret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
