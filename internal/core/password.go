package core

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/illarion/passvault/internal/crypto"
)

// PasswordEnv names the environment variable read by GetPasswordFromEnv.
const PasswordEnv = "PASSVAULT_PASSWORD"

var stdinReader = bufio.NewReader(os.Stdin)

// Stdin is the buffered standard input shared by every prompt.
func Stdin() *bufio.Reader {
	return stdinReader
}

// ReadPassword reads a password from the terminal without echoing. When
// stdin is not a terminal one line is read instead, so scripts can pipe
// the passphrase in.
func ReadPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(stdinReader)
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		crypto.ClearBytes(line)
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	n := len(bytes.TrimRight(line, "\r\n"))
	out := make([]byte, n)
	copy(out, line)
	crypto.ClearBytes(line)
	return out, nil
}

// ReadPasswordConfirm reads a new password twice and ensures they match.
func ReadPasswordConfirm(prompt string) ([]byte, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, ErrPasswordRequired
	}

	second, err := ReadPassword("Confirm: ")
	if err != nil {
		crypto.ClearBytes(first)
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		crypto.ClearBytes(first)
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}

// GetPasswordFromEnv reads the vault passphrase from PASSVAULT_PASSWORD.
// It returns nil when the variable is unset or empty.
func GetPasswordFromEnv() []byte {
	if v, ok := os.LookupEnv(PasswordEnv); ok && v != "" {
		return []byte(v)
	}
	return nil
}
