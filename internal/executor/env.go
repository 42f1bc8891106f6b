package executor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/specialistvlad/stagegrid/internal/expr"
)

// Variables exported to every step in addition to the pipeline's own.
const (
	EnvRunID     = "SYSTEM_RUNID"
	EnvPipeline  = "SYSTEM_PIPELINENAME"
	EnvStageName = "SYSTEM_STAGENAME"
	EnvJobName   = "SYSTEM_JOBNAME"
	EnvStepName  = "SYSTEM_STEPNAME"
)

// VariableEnvName is the environment name a pipeline variable is exported
// under: uppercased, with anything outside [A-Z0-9_] replaced by '_'.
func VariableEnvName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func interpolateMap(m map[string]string, c *expr.Context) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, err := expr.Interpolate(v, expr.ModeRuntime, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

// environment layers the step environment, later layers winning: the base
// environment, pipeline env, job env, variables, step env, task inputs and
// finally the SYSTEM_* names.
func (r *run) environment(sc *expr.Context, s stepRun, step string, inputs map[string]string) ([]string, error) {
	env := make(map[string]string, len(r.environ)+16)
	for _, kv := range r.environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	layers := []struct {
		name string
		vars map[string]string
	}{
		{"pipeline env", r.g.Pipeline.Env},
		{"job env", s.job.Job.Env},
	}
	for _, l := range layers {
		vals, err := interpolateMap(l.vars, sc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.name, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for k, v := range sc.Variables {
		env[VariableEnvName(k)] = v
	}
	stepEnv, err := interpolateMap(s.step.Env, sc)
	if err != nil {
		return nil, fmt.Errorf("step env: %w", err)
	}
	for k, v := range stepEnv {
		env[k] = v
	}
	for k, v := range inputs {
		env[k] = v
	}

	env[EnvRunID] = r.id
	env[EnvPipeline] = r.g.Pipeline.Name
	env[EnvStageName] = s.stage.Name
	env[EnvJobName] = s.job.Name
	env[EnvStepName] = step

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out, nil
}

var setVariablePattern = regexp.MustCompile(`^##vso\[task\.setvariable\b([^\]]*)\](.*)$`)

type setVariable struct {
	Name   string
	Value  string
	Output bool
}

// parseSetVariables extracts ##vso[task.setvariable variable=NAME;isOutput=true]VALUE
// logging commands from step output. Lines without a variable name are ignored.
func parseSetVariables(stdout string) []setVariable {
	if !strings.Contains(stdout, "##vso[") {
		return nil
	}
	var out []setVariable
	for _, line := range strings.Split(stdout, "\n") {
		m := setVariablePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		sv := setVariable{Value: m[2]}
		for _, prop := range strings.Split(m[1], ";") {
			k, v, _ := strings.Cut(strings.TrimSpace(prop), "=")
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "variable":
				sv.Name = strings.TrimSpace(v)
			case "isoutput":
				sv.Output = strings.EqualFold(strings.TrimSpace(v), "true")
			}
		}
		if sv.Name != "" {
			out = append(out, sv)
		}
	}
	return out
}

// applySetVariables makes variables set by a step visible to later steps.
// Output variables are also published as job outputs "<step>.<name>".
func applySetVariables(st *jobState, step, stdout string) {
	for _, sv := range parseSetVariables(stdout) {
		if !sv.Output {
			st.vars[sv.Name] = sv.Value
			continue
		}
		key := step + "." + sv.Name
		st.vars[key] = sv.Value
		st.outputs[key] = sv.Value
	}
}
