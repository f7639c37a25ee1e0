package gedcom

import (
	"regexp"
	"strconv"
	"strings"
)

// Line is one tokenized GEDCOM line: <level> [<@xref@>] <TAG> [<value>].
type Line struct {
	Level   int
	Pointer string // xref without the surrounding @, empty if absent
	Tag     string
	Value   string
}

var lineRe = regexp.MustCompile(`^(\d+)\s+(?:@([^@\s]+)@\s+)?([A-Za-z0-9_]+)(?:\s(.*))?$`)

// ParseLine tokenizes a trimmed GEDCOM line. ok is false for lines that do not
// match the level/tag/value grammar.
func ParseLine(raw string) (line Line, ok bool) {
	m := lineRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Line{}, false
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return Line{}, false
	}
	return Line{
		Level:   level,
		Pointer: m[2],
		Tag:     strings.ToUpper(m[3]),
		Value:   strings.TrimSpace(m[4]),
	}, true
}

// StripPointer turns "@I1@" into "I1". Values that are not pointers are returned trimmed.
func StripPointer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 2 && strings.HasPrefix(v, "@") && strings.HasSuffix(v, "@") {
		return v[1 : len(v)-1]
	}
	return v
}

// IsPointer reports whether v has the @xref@ shape.
func IsPointer(v string) bool {
	v = strings.TrimSpace(v)
	return len(v) > 2 && strings.HasPrefix(v, "@") && strings.HasSuffix(v, "@") && !strings.Contains(v[1:len(v)-1], "@")
}

// splitLines normalizes line endings and strips a leading BOM.
func splitLines(raw string) []string {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(raw, "\n")
}
