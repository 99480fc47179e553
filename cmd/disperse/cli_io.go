package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

func readLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	t, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || t == "") {
		return "", err
	}
	return strings.TrimSpace(t), nil
}

func readPassword(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func stdinIsTerminal() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

var errNoPrompt = errors.New("cannot ask for confirmation")

// openTTY opens the controlling terminal for prompts while stdin is taken.
var openTTY = func() (io.ReadCloser, error) { return os.Open("/dev/tty") }

func readsStdin(path string) bool { return path == "" || path == "-" }

// readInput returns the recipient list from a file, or stdin for "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// readBlock reads lines until a lone "." or EOF.
func readBlock(r *bufio.Reader) (string, error) {
	var lines []string
	for {
		t, err := r.ReadString('\n')
		line := strings.TrimRight(t, "\r\n")
		if strings.TrimSpace(line) == "." {
			break
		}
		if line != "" || err == nil {
			lines = append(lines, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.Join(lines, "\n"), nil
}
