package taskstore

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/stagegrid/internal/ctxlog"
	"github.com/specialistvlad/stagegrid/internal/fsutil"
	"github.com/specialistvlad/stagegrid/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Load reads every .hcl manifest below dir into a new store.
func Load(ctx context.Context, dir string) (*Store, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading task manifests...", "path", dir)

	filePaths, err := fsutil.FindFiles(dir, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to walk tasks directory %s: %w", dir, err)
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl task manifests found in path", "path", dir)
	}

	s := New()
	parser := hclparse.NewParser()
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}
		if err := s.addFile(hclFile, filePath); err != nil {
			return nil, err
		}
		logger.Debug("Loaded task manifest.", "file", filePath)
	}

	logger.Info("Task manifests loaded.", "tasks", s.Len())
	return s, nil
}

// LoadBytes parses a single manifest held in memory into s.
func (s *Store) LoadBytes(src []byte, filename string) error {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return s.addFile(hclFile, filename)
}

func (s *Store) addFile(f *hcl.File, filename string) error {
	var manifest manifestFile
	if diags := gohcl.DecodeBody(f.Body, nil, &manifest); diags.HasErrors() {
		return fmt.Errorf("failed to decode task manifest %s: %w", filename, diags)
	}

	for _, block := range manifest.Tasks {
		t, err := newTask(block, filename)
		if err != nil {
			return err
		}
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

func newTask(b *taskBlock, filename string) (*Task, error) {
	t := &Task{
		Name:        b.Name,
		Version:     b.Version,
		Description: b.Description,
		Source:      filename,
	}

	switch {
	case b.Script != "" && len(b.Command) > 0:
		return nil, fmt.Errorf("task '%s' in %s: script and command are mutually exclusive", t.Ref(), filename)
	case b.Script != "":
		t.Action = model.Action{Shell: &model.ShellAction{Interpreter: b.Interpreter, Script: b.Script}}
	case len(b.Command) > 0:
		t.Action = model.Action{Command: &model.CommandAction{Argv: b.Command}}
	default:
		return nil, fmt.Errorf("task '%s' in %s: one of script or command is required", t.Ref(), filename)
	}

	for _, in := range b.Inputs {
		input := Input{Name: in.Name, Description: in.Description, Required: in.Required}
		if in.Default != nil && !in.Default.IsNull() {
			def, err := ctyToString(*in.Default)
			if err != nil {
				return nil, fmt.Errorf("task '%s' input '%s': %w", t.Ref(), in.Name, err)
			}
			input.Default = def
			input.HasDefault = true
		}
		t.Inputs = append(t.Inputs, input)
	}
	return t, nil
}

// ctyToString renders a default value the way it is exported to the
// environment: primitives as text, collections as JSON.
func ctyToString(v cty.Value) (string, error) {
	if !v.IsKnown() {
		return "", fmt.Errorf("default value is not known")
	}
	if v.Type().IsPrimitiveType() {
		s, err := convert.Convert(v, cty.String)
		if err != nil {
			return "", fmt.Errorf("convert default: %w", err)
		}
		return s.AsString(), nil
	}
	data, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode default: %w", err)
	}
	return string(data), nil
}
