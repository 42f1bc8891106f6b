package nodeid

// PathSegment represents a single component of an address path, e.g., `name[index]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a new path segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// NewPathSegmentWithIndex creates a new path segment that includes an index.
func NewPathSegmentWithIndex(name string, index int) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// HasIndex returns true if the path segment has an explicit index.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address is the structured representation of a unique node identifier.
type Address struct {
	Path []PathSegment
}

// Stage returns the address of a stage node.
func Stage(name string) Address {
	return Address{Path: []PathSegment{NewPathSegment(name)}}
}

// Job returns the address of a plain job.
func Job(stage, job string) Address {
	return Address{Path: []PathSegment{NewPathSegment(stage), NewPathSegment(job)}}
}

// MatrixJob returns the address of instance index of a job template.
func MatrixJob(stage, template string, index int) Address {
	return Address{Path: []PathSegment{NewPathSegment(stage), NewPathSegmentWithIndex(template, index)}}
}

// IsStage reports whether the address names a stage node.
func (a Address) IsStage() bool {
	return len(a.Path) == 1
}

// IsJob reports whether the address names a job instance.
func (a Address) IsJob() bool {
	return len(a.Path) == 2
}

// StageName returns the stage segment, or "" for an empty address.
func (a Address) StageName() string {
	if len(a.Path) == 0 {
		return ""
	}
	return a.Path[0].Name
}

// JobSegment returns the job segment of a job address.
func (a Address) JobSegment() (PathSegment, bool) {
	if !a.IsJob() {
		return PathSegment{}, false
	}
	return a.Path[1], true
}
