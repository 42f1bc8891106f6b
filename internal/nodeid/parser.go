package nodeid

import (
	"fmt"
	"strconv"
	"strings"
)

// maxSegments is the depth of a job address: stage, then job.
const maxSegments = 2

// Parse reads the canonical form produced by Address.String.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Address{}, fmt.Errorf("identifier cannot be empty")
	}

	parts := strings.Split(raw, ".")
	if len(parts) > maxSegments {
		return Address{}, fmt.Errorf("identifier %q has %d segments, want stage or stage.job", raw, len(parts))
	}

	var addr Address
	for i, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Address{}, fmt.Errorf("identifier %q: %w", raw, err)
		}
		if i == 0 && seg.HasIndex() {
			return Address{}, fmt.Errorf("identifier %q: stage segment %q cannot carry an index", raw, seg.Name)
		}
		addr.Path = append(addr.Path, seg)
	}
	return addr, nil
}

// parseSegment reads `name` or `name[index]`.
func parseSegment(s string) (PathSegment, error) {
	if s == "" {
		return PathSegment{}, fmt.Errorf("empty segment")
	}
	name, rest, indexed := strings.Cut(s, "[")
	if err := checkName(name); err != nil {
		return PathSegment{}, err
	}
	if !indexed {
		return NewPathSegment(name), nil
	}

	digits, ok := strings.CutSuffix(rest, "]")
	if !ok || digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return PathSegment{}, fmt.Errorf("invalid index in segment %q", s)
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return PathSegment{}, fmt.Errorf("invalid index in segment %q: %w", s, err)
	}
	return NewPathSegmentWithIndex(name, index), nil
}

// checkName accepts letters, digits, '_' and '-', but not hyphens alone.
func checkName(name string) error {
	if strings.Trim(name, "-") == "" {
		return fmt.Errorf("invalid segment name %q", name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid character %q in segment name %q", r, name)
		}
	}
	return nil
}
