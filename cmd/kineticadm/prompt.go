package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// secret prompts for a PIN on the app's streams.
func (a *app) secret(prompt string) ([]byte, error) {
	if a.lines == nil {
		a.lines = bufio.NewReader(a.in)
	}
	return readSecret(a.in, a.lines, a.out, prompt)
}

// readSecret prompts on out and reads one line, without echo when in is a
// terminal. lines buffers in across calls.
func readSecret(in io.Reader, lines *bufio.Reader, out io.Writer, prompt string) ([]byte, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret: %w", err)
		}
		return secret, nil
	}

	line, err := lines.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
