package dialogue

import (
	"strings"

	"github.com/talgya/atlas-live/internal/broadcast"
)

// Tags maps each role to the bracketed tag the generator is asked to use.
type Tags struct {
	A string
	B string
}

// DefaultTags are used when none are configured.
var DefaultTags = Tags{A: "HOST", B: "GUEST"}

func (t Tags) prefixes() []struct {
	prefix string
	role   broadcast.Role
} {
	return []struct {
		prefix string
		role   broadcast.Role
	}{
		{"[" + strings.ToLower(strings.TrimSpace(t.A)) + "]", broadcast.RoleA},
		{"[" + strings.ToLower(strings.TrimSpace(t.B)) + "]", broadcast.RoleB},
	}
}

// ParseScript turns generator output into a script. Each non-empty line must
// start with a role tag, matched case-insensitively; a colon after the tag is
// allowed. Every other line is dropped, as are tagged lines with no text.
func ParseScript(text string, tags Tags) broadcast.Script {
	prefixes := tags.prefixes()
	var script broadcast.Script

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, p := range prefixes {
			if !strings.HasPrefix(lower, p.prefix) {
				continue
			}
			rest := strings.TrimSpace(line[len(p.prefix):])
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			if rest != "" {
				script = append(script, broadcast.DialogueLine{Role: p.role, Text: rest})
			}
			break
		}
	}
	return script
}
