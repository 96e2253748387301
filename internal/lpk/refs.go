package lpk

import (
	"regexp"
	"strings"

	"github.com/hpungsan/lpkunpack/internal/errors"
)

// entryPattern matches a content-id logical entry: 32 lowercase hex
// digits, any single character, then "bin" or "bin3".
var entryPattern = regexp.MustCompile(`[0-9a-f]{32}.bin3?`)

var entryFullPattern = regexp.MustCompile(`^[0-9a-f]{32}.bin3?$`)

// Directive keywords recognized inside *_command fields.
const (
	keywordChangeModel   = "change_model"
	keywordChangeCostume = "change_cos"
)

// IsEntry reports whether s is exactly a content-id logical entry.
func IsEntry(s string) bool {
	return entryFullPattern.MatchString(s)
}

// FindEntry returns the first content-id logical entry embedded in s.
func FindEntry(s string) (string, bool) {
	m := entryPattern.FindString(s)
	return m, m != ""
}

// isCommandField reports whether a field path names a command list.
func isCommandField(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, "_command") || strings.HasSuffix(lower, "_postcommand")
}

// splitDirectives splits a command value on ';' and drops blanks.
func splitDirectives(val string) []string {
	parts := strings.Split(val, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// modelSwitchTarget returns the sub-document a change_model directive
// points at: its first argument with quotes stripped, else the first
// content-id entry anywhere in the directive.
func modelSwitchTarget(directive string) string {
	rest := strings.TrimSpace(directive[len(keywordChangeModel):])
	if fields := strings.Fields(rest); len(fields) > 0 {
		if target := strings.Trim(fields[0], `"'`); target != "" {
			return target
		}
	}
	if entry, ok := FindEntry(directive); ok {
		return entry
	}
	return ""
}

func hasKeyword(directive, keyword string) bool {
	return len(directive) >= len(keyword) && strings.EqualFold(directive[:len(keyword)], keyword)
}

func errNotInContainer(logical string) error {
	return errors.NewNotFound(logical)
}
