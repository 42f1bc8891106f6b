package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_Run(t *testing.T) {
	testCases := []struct {
		name       string
		argv       []string
		env        []string
		wantCode   int
		wantStdout string
		wantStderr string
		wantErr    bool
	}{
		{name: "success", argv: []string{"sh", "-c", "echo hello"}, wantCode: 0, wantStdout: "hello\n"},
		{name: "non-zero exit is not an error", argv: []string{"sh", "-c", "echo oops >&2; exit 3"}, wantCode: 3, wantStderr: "oops\n"},
		{name: "environment is passed", argv: []string{"sh", "-c", "printf %s \"$GREETING\""}, env: []string{"GREETING=hi"}, wantStdout: "hi"},
		{name: "missing program", argv: []string{"definitely-not-a-real-program-xyz"}, wantCode: -1, wantErr: true},
		{name: "empty argv", argv: nil, wantCode: -1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewHost(0).Run(context.Background(), Command{Argv: tc.argv, Env: tc.env})

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantCode, res.ExitCode)
			assert.Equal(t, tc.wantStdout, res.Stdout)
			assert.Equal(t, tc.wantStderr, res.Stderr)
		})
	}
}

func TestHost_RunStreamsAndCaptures(t *testing.T) {
	var stream bytes.Buffer

	res, err := NewHost(0).Run(context.Background(), Command{
		Argv:   []string{"sh", "-c", "echo one; echo two"},
		Stdout: &stream,
	})

	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", res.Stdout)
	assert.Equal(t, "one\ntwo\n", stream.String())
}

func TestHost_RunInDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))

	res, err := NewHost(0).Run(context.Background(), Command{Argv: []string{"ls"}, Dir: dir})

	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "marker.txt")
}

func TestHost_RunCanceledKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	// The child sleep would keep the pipes open if only the shell were killed.
	res, err := NewHost(0).Run(ctx, Command{Argv: []string{"sh", "-c", "sleep 10 & sleep 10"}})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptArgv(t *testing.T) {
	testCases := []struct {
		interpreter string
		want        []string
		wantErr     bool
	}{
		{interpreter: "", want: []string{"sh", "-c", "echo hi"}},
		{interpreter: "bash", want: []string{"bash", "--noprofile", "--norc", "-o", "pipefail", "-c", "echo hi"}},
		{interpreter: "PWSH", want: []string{"pwsh", "-NoLogo", "-NoProfile", "-NonInteractive", "-Command", "echo hi"}},
		{interpreter: "zsh", want: []string{"zsh", "-c", "echo hi"}},
		{interpreter: "sh -x", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.interpreter, func(t *testing.T) {
			got, err := ScriptArgv(tc.interpreter, "echo hi")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
