package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSetter struct {
	userID     string
	credential string
	err        error
}

func (s *recordingSetter) SetCredential(_ context.Context, userID, credential string) error {
	s.userID, s.credential = userID, credential
	return s.err
}

func TestCredentialCommandStoresFirstLine(t *testing.T) {
	setter := &recordingSetter{}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := CredentialCommand(context.Background(), setter, CredentialOptions{
		UserID: " admin-1 ",
		Stdin:  strings.NewReader("correct horse battery\nignored\n"),
		Stdout: stdout,
		Stderr: stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Equal(t, "admin-1", setter.userID)
	require.Equal(t, "correct horse battery", setter.credential)
	require.Contains(t, stdout.String(), "admin-1")
}

func TestCredentialCommandFailures(t *testing.T) {
	cases := map[string]struct {
		user  string
		input string
		err   error
	}{
		"missing user":     {user: "", input: "secret-credential\n"},
		"empty credential": {user: "admin-1", input: "\n"},
		"setter rejects":   {user: "admin-1", input: "short\n", err: errors.New("credential too short")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			stderr := new(bytes.Buffer)
			code := CredentialCommand(context.Background(), &recordingSetter{err: tc.err}, CredentialOptions{
				UserID: tc.user,
				Stdin:  strings.NewReader(tc.input),
				Stdout: new(bytes.Buffer),
				Stderr: stderr,
			})
			require.Equal(t, 1, code)
			require.NotEmpty(t, stderr.String())
		})
	}
}
