package matrix

import (
	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// InstanceID indexes an Instance inside its Arena.
type InstanceID int

// Instance is one schedulable job. It references its template by index
// instead of copying the definition.
type Instance struct {
	ID       InstanceID
	Template int
	// Name is unique within the stage: the job name for plain jobs,
	// "<job>.<combo>" for matrix instances.
	Name string
	// Index is the combination's position in the matrix product; 0 for plain jobs.
	Index int
	// Overlay holds the matrix values of this instance only.
	Overlay map[string]string
	// Variables is the job's variables with Overlay merged on top.
	Variables map[string]string
	// MaxParallel caps concurrently running instances of the same template.
	MaxParallel int
}

// Arena owns job templates and the instances expanded from them.
type Arena struct {
	templates []*model.Job
	instances []Instance
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Add expands job and stores the template and its instances. It returns the
// IDs of the new instances in combination order.
func (a *Arena) Add(job *model.Job, ectx *expr.Context) ([]InstanceID, error) {
	combos, err := Expand(job, ectx)
	if err != nil {
		return nil, err
	}

	tmpl := len(a.templates)
	a.templates = append(a.templates, job)

	maxParallel := 0
	if job.IsTemplate() {
		maxParallel = job.Strategy.MaxParallel
	}

	ids := make([]InstanceID, 0, len(combos))
	for _, c := range combos {
		vars := make(map[string]string, len(job.Variables)+len(c.Overlay))
		for k, v := range job.Variables {
			vars[k] = v
		}
		for k, v := range c.Overlay {
			vars[k] = v
		}
		id := InstanceID(len(a.instances))
		a.instances = append(a.instances, Instance{
			ID:          id,
			Template:    tmpl,
			Name:        c.Name,
			Index:       c.Index,
			Overlay:     c.Overlay,
			Variables:   vars,
			MaxParallel: maxParallel,
		})
		ids = append(ids, id)
	}
	return ids, nil
}

// Instance returns the instance with the given ID. It panics on an ID that
// was not returned by Add.
func (a *Arena) Instance(id InstanceID) *Instance {
	return &a.instances[id]
}

// Template returns the job definition an instance was expanded from.
func (a *Arena) Template(id InstanceID) *model.Job {
	return a.templates[a.instances[id].Template]
}

// Len returns the number of instances.
func (a *Arena) Len() int {
	return len(a.instances)
}
