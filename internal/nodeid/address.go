package nodeid

import (
	"slices"
	"strconv"
	"strings"
)

// String renders the canonical form: "stage", "stage.job" or
// "stage.job[index]".
func (a Address) String() string {
	var sb strings.Builder
	for i, seg := range a.Path {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.Name)
		if seg.HasIndex() {
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(seg.Index))
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// Equal reports whether both addresses name the same node.
func (a Address) Equal(other Address) bool {
	return slices.Equal(a.Path, other.Path)
}

// StageAddress returns the address of the stage a belongs to; a stage
// address is returned unchanged.
func (a Address) StageAddress() Address {
	if len(a.Path) == 0 {
		return Address{}
	}
	return Stage(a.Path[0].Name)
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
