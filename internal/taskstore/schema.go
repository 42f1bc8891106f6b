package taskstore

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// manifestFile is the top-level structure of a manifest file.
type manifestFile struct {
	Tasks []*taskBlock `hcl:"task,block"`
	Body  hcl.Body     `hcl:",remain"`
}

// taskBlock is a `task` block.
type taskBlock struct {
	Name        string        `hcl:"name,label"`
	Version     string        `hcl:"version,optional"`
	Description string        `hcl:"description,optional"`
	Interpreter string        `hcl:"interpreter,optional"`
	Script      string        `hcl:"script,optional"`
	Command     []string      `hcl:"command,optional"`
	Inputs      []*inputBlock `hcl:"input,block"`
}

// inputBlock defines a single input of a task.
type inputBlock struct {
	Name        string     `hcl:"name,label"`
	Description string     `hcl:"description,optional"`
	Default     *cty.Value `hcl:"default,optional"`
	Required    bool       `hcl:"required,optional"`
}
