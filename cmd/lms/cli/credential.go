package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CredentialSetter stores a new escalation credential for a user.
type CredentialSetter interface {
	SetCredential(ctx context.Context, userID, credential string) error
}

// CredentialOptions configures the set-admin-credential command.
type CredentialOptions struct {
	UserID string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// CredentialCommand reads a credential from stdin (first line) and stores its
// hash for the user's elevated account. It returns the process exit code.
func CredentialCommand(ctx context.Context, setter CredentialSetter, opts CredentialOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		fmt.Fprintln(opts.Stderr, "set-admin-credential: --user is required")
		return 1
	}
	credential, err := readLine(opts.Stdin)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "set-admin-credential: read credential: %v\n", err)
		return 1
	}
	if err := setter.SetCredential(ctx, userID, credential); err != nil {
		fmt.Fprintf(opts.Stderr, "set-admin-credential: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "escalation credential updated for %s\n", userID)
	return 0
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty credential")
	}
	return line, nil
}
