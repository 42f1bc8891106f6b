package matrix

import (
	"strconv"
	"strings"
)

// namer generates unique instance names for one template.
type namer struct {
	job  string
	used map[string]struct{}
}

func newNamer(job string) *namer {
	return &namer{job: job, used: make(map[string]struct{})}
}

// next builds "<job>.<p1>_<p2>..." from sanitized parts. On collision the
// combination index is appended until the name is unique.
func (n *namer) next(parts []string, index int) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = sanitize(p)
	}
	name := n.job + "." + strings.Join(clean, "_")
	for {
		if _, taken := n.used[name]; !taken {
			break
		}
		name += "_" + strconv.Itoa(index)
	}
	n.used[name] = struct{}{}
	return name
}

// sanitize keeps letters, digits, '_' and '-'; everything else becomes '_'.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
