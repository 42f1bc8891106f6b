package taskstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/stagegrid/internal/model"
)

// ErrTaskNotFound is returned by Resolve for an unknown reference.
var ErrTaskNotFound = errors.New("task not found")

// Task is a resolved, runnable task definition.
type Task struct {
	Name        string
	Version     string
	Description string
	// Action is a Shell or Command action.
	Action model.Action
	Inputs []Input
	// Source is the manifest file the task was declared in.
	Source string
}

// Ref returns the canonical reference, "name@version" or "name".
func (t *Task) Ref() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + "@" + t.Version
}

// Input is one declared task input.
type Input struct {
	Name        string
	Description string
	Default     string
	HasDefault  bool
	Required    bool
}

// Env returns the INPUT_<NAME> variables for the given step inputs. Declared
// defaults fill missing values; a missing required input is an error. Inputs
// the manifest does not declare are passed through as well.
func (t *Task) Env(inputs map[string]string) (map[string]string, error) {
	given := make(map[string]string, len(inputs))
	for k, v := range inputs {
		given[strings.ToLower(k)] = v
	}

	env := make(map[string]string, len(t.Inputs)+len(inputs))
	declared := make(map[string]bool, len(t.Inputs))
	var missing []string
	for _, in := range t.Inputs {
		key := strings.ToLower(in.Name)
		declared[key] = true
		switch v, ok := given[key]; {
		case ok:
			env[InputEnvName(in.Name)] = v
		case in.HasDefault:
			env[InputEnvName(in.Name)] = in.Default
		case in.Required:
			missing = append(missing, in.Name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("task '%s': missing required inputs: %s", t.Ref(), strings.Join(missing, ", "))
	}

	extra := make([]string, 0)
	for k := range inputs {
		if !declared[strings.ToLower(k)] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		env[InputEnvName(k)] = inputs[k]
	}
	return env, nil
}

// InputEnvName maps an input name to its environment variable name.
func InputEnvName(name string) string {
	return "INPUT_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Store holds loaded tasks keyed by reference.
type Store struct {
	tasks  map[string]*Task
	byName map[string][]*Task
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tasks:  make(map[string]*Task),
		byName: make(map[string][]*Task),
	}
}

// Add registers a task. Registering the same reference twice is an error.
func (s *Store) Add(t *Task) error {
	ref := t.Ref()
	if prev, ok := s.tasks[ref]; ok {
		return fmt.Errorf("task '%s' declared twice (%s and %s)", ref, prev.Source, t.Source)
	}
	s.tasks[ref] = t
	s.byName[t.Name] = append(s.byName[t.Name], t)
	return nil
}

// Resolve finds a task by reference. "name@version" must match exactly; a
// bare "name" matches when exactly one version of the task is loaded.
func (s *Store) Resolve(ref string) (*Task, error) {
	ref = strings.TrimSpace(ref)
	if t, ok := s.tasks[ref]; ok {
		return t, nil
	}
	if !strings.Contains(ref, "@") {
		if versions := s.byName[ref]; len(versions) == 1 {
			return versions[0], nil
		} else if len(versions) > 1 {
			return nil, fmt.Errorf("%w: '%s' is ambiguous, %d versions loaded", ErrTaskNotFound, ref, len(versions))
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrTaskNotFound, ref)
}

// Refs returns every loaded reference, sorted.
func (s *Store) Refs() []string {
	refs := make([]string, 0, len(s.tasks))
	for ref := range s.tasks {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Len returns the number of loaded tasks.
func (s *Store) Len() int {
	return len(s.tasks)
}
