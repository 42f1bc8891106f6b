package pipelinefile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/stagegrid/internal/model"
)

func TestMarshal_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "full pipeline", src: fullPipeline},
		{name: "shorthand steps", src: "steps:\n  - script: echo hi\n  - command: [ls, -la]\n"},
		{name: "legs and expressions", src: `
stages:
  - stage: s
    jobs:
      - job: a
        strategy:
          matrix: {fast: {opt: "2"}, slow: {}}
        steps:
          - script: "echo  \n with trailing space"
      - job: b
        strategy:
          matrix: "$[ parameters.matrix ]"
        steps:
          - task: greet
      - job: c
        variables: {"true": "yes", count: "3"}
        strategy:
          matrix:
            os: ${{ split(variables.oses, ',') }}
        steps:
          - pwsh: Write-Host "hi"
`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			want, err := ParseBytes("p.yml", []byte(tc.src))
			require.NoError(t, err)

			// --- Act ---
			out, err := Marshal(want)
			require.NoError(t, err)
			got, err := ParseBytes("p.yml", out)

			// --- Assert ---
			require.NoError(t, err, "canonical output:\n%s", out)
			assert.Equal(t, want, got)

			again, err := Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, string(out), string(again), "canonical form is stable")
		})
	}
}

func TestMarshal_Canonical(t *testing.T) {
	p := &model.Pipeline{
		Name:      "demo",
		Variables: map[string]string{"b": "2", "a": "1"},
		Stages: []*model.Stage{{
			Name:      "build",
			DependsOn: []string{},
			Jobs: []*model.Job{{
				Name: "compile",
				Steps: []*model.Step{{
					Name:   "make",
					Action: model.Action{Shell: &model.ShellAction{Script: "make\nmake install\n"}},
				}},
			}},
		}},
	}

	out, err := Marshal(p)

	require.NoError(t, err)
	want := strings.Join([]string{
		"name: demo",
		"variables:",
		"  a: \"1\"",
		"  b: \"2\"",
		"stages:",
		"  - stage: build",
		"    dependsOn: []",
		"    jobs:",
		"      - job: compile",
		"        steps:",
		"          - script: |",
		"              make",
		"              make install",
		"            name: make",
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestMarshal_NoAction(t *testing.T) {
	p := &model.Pipeline{Stages: []*model.Stage{{
		Name: "s",
		Jobs: []*model.Job{{Name: "j", Steps: []*model.Step{{Name: "empty"}}}},
	}}}

	_, err := Marshal(p)

	assert.ErrorContains(t, err, "step 'empty' has no action")
}
