package taskstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetManifest = `
task "greet" {
  version     = "1"
  description = "Print a greeting"
  interpreter = "bash"
  script      = "echo \"hello $INPUT_WHO\""

  input "who" {
    default = "world"
  }

  input "times" {
    default = 2
  }

  input "tags" {
    default = ["a", "b"]
  }

  input "token" {
    required = true
  }
}

task "list" {
  command = ["ls", "-la"]
}
`

func TestLoadBytes(t *testing.T) {
	s := New()

	err := s.LoadBytes([]byte(greetManifest), "greet.hcl")

	require.NoError(t, err)
	assert.Equal(t, []string{"greet@1", "list"}, s.Refs())

	greet, err := s.Resolve("greet@1")
	require.NoError(t, err)
	require.NotNil(t, greet.Action.Shell)
	assert.Equal(t, "bash", greet.Action.Shell.Interpreter)
	assert.Equal(t, "greet.hcl", greet.Source)
	require.Len(t, greet.Inputs, 4)
	assert.Equal(t, Input{Name: "who", Default: "world", HasDefault: true}, greet.Inputs[0])
	assert.Equal(t, "2", greet.Inputs[1].Default)
	assert.JSONEq(t, `["a","b"]`, greet.Inputs[2].Default)
	assert.True(t, greet.Inputs[3].Required)

	list, err := s.Resolve("list")
	require.NoError(t, err)
	require.NotNil(t, list.Action.Command)
	assert.Equal(t, []string{"ls", "-la"}, list.Action.Command.Argv)
}

func TestResolve(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(&Task{Name: "build", Version: "1"}))
	require.NoError(t, s.Add(&Task{Name: "build", Version: "2"}))
	require.NoError(t, s.Add(&Task{Name: "lint", Version: "3"}))

	testCases := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "build@2", want: "build@2"},
		{ref: "lint", want: "lint@3"},
		{ref: " lint@3 ", want: "lint@3"},
		{ref: "build", wantErr: true},
		{ref: "build@9", wantErr: true},
		{ref: "ghost", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.ref, func(t *testing.T) {
			got, err := s.Resolve(tc.ref)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrTaskNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Ref())
		})
	}
}

func TestTask_Env(t *testing.T) {
	task := &Task{Name: "greet", Inputs: []Input{
		{Name: "who", Default: "world", HasDefault: true},
		{Name: "token", Required: true},
		{Name: "dry-run"},
	}}

	t.Run("defaults and extras", func(t *testing.T) {
		env, err := task.Env(map[string]string{"TOKEN": "s3cr3t", "extra.value": "x"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"INPUT_WHO":         "world",
			"INPUT_TOKEN":       "s3cr3t",
			"INPUT_EXTRA_VALUE": "x",
		}, env)
	})

	t.Run("missing required input", func(t *testing.T) {
		_, err := task.Env(map[string]string{"who": "me"})
		assert.ErrorContains(t, err, "missing required inputs: token")
	})
}

func TestLoadErrors(t *testing.T) {
	testCases := map[string]string{
		"syntax error": `task "x" {`,
		"script and command": `
task "x" {
  script  = "a"
  command = ["b"]
}`,
		"no action":      `task "x" { description = "nothing" }`,
		"duplicate task": "task \"x\" { script = \"a\" }\ntask \"x\" { script = \"b\" }",
	}

	for name, src := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, New().LoadBytes([]byte(src), "bad.hcl"))
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`task "a" { script = "echo a" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "b.hcl"), []byte(`task "b" { command = ["echo", "b"] }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(`not hcl`), 0o644))

	s, err := Load(context.Background(), dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Refs())
}
