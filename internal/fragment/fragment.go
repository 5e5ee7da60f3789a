// Package fragment implements fragment-ID minting and reference parsing
// (C9): the ^xyz short IDs attached to spans of message text, and the four
// inline reference forms recognised inside free text.
package fragment

import (
	"regexp"
	"strings"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Reference kinds (§4.9).
const (
	KindFragment           = "fragment"
	KindArtifactLine       = "artifact_line"
	KindArtifactLineAtCommit = "artifact_line_at_commit"
	KindObject             = "object"
	KindLog                = "log"
)

// Reference is one parsed inline reference occurrence (§4.9).
type Reference struct {
	Type   string
	Start  int
	End    int
	Target string
	Raw    string
}

// The sub-patterns are joined into the combined alternation in the spec's
// stated priority order, which decides between two forms that could start
// at the same position (Go's RE2 tries alternatives left to right and takes
// the first that matches, i.e. leftmost-first rather than leftmost-longest).
const (
	fragmentPattern     = `\^[0-9a-z]{3}`
	artifactLinePattern = `[A-Za-z_][\w_]*:\d+(?:@[0-9a-f]{4,})?`
	objectPattern       = `@(?:soil|core)_[\w-]+`
	logPattern          = `\[[^\]]+\]\((?:soil|core)_[\w-]+\)`
)

var combined = regexp.MustCompile(strings.Join([]string{
	fragmentPattern, artifactLinePattern, objectPattern, logPattern,
}, "|"))

var (
	reFragment     = regexp.MustCompile(`^` + fragmentPattern + `$`)
	reArtifactLine = regexp.MustCompile(`^([A-Za-z_][\w_]*):(\d+)(?:@([0-9a-f]{4,}))?$`)
	reObject       = regexp.MustCompile(`^@((?:soil|core)_[\w-]+)$`)
	reLog          = regexp.MustCompile(`^\[[^\]]+\]\(((?:soil|core)_[\w-]+)\)$`)
)

// ParseReferences returns the non-overlapping occurrences of every
// recognised reference form in text, in input order (§4.9).
func ParseReferences(text string) []Reference {
	matches := combined.FindAllStringIndex(text, -1)
	out := make([]Reference, 0, len(matches))

	for _, m := range matches {
		raw := text[m[0]:m[1]]
		ref := classify(raw)
		ref.Start = m[0]
		ref.End = m[1]
		ref.Raw = raw
		out = append(out, ref)
	}
	return out
}

func classify(raw string) Reference {
	switch {
	case reFragment.MatchString(raw):
		return Reference{Type: KindFragment, Target: raw}

	case reArtifactLine.MatchString(raw):
		m := reArtifactLine.FindStringSubmatch(raw)
		if m[3] != "" {
			return Reference{Type: KindArtifactLineAtCommit, Target: raw}
		}
		return Reference{Type: KindArtifactLine, Target: raw}

	case reObject.MatchString(raw):
		m := reObject.FindStringSubmatch(raw)
		return Reference{Type: KindObject, Target: m[1]}

	case reLog.MatchString(raw):
		m := reLog.FindStringSubmatch(raw)
		return Reference{Type: KindLog, Target: m[1]}

	default:
		return Reference{Type: "", Target: raw}
	}
}

// ResolveFragment and ResolveArtifactLine are explicit future extensions
// (§4.9): resolving a reference against stored data is out of scope for
// this implementation and must signal NotImplemented rather than silently
// returning a partial answer.
func ResolveFragment(id string) (string, error) {
	return "", kernerr.NewNotImplementedError("fragment resolution against stored data")
}

func ResolveArtifactLine(ref string) (string, error) {
	return "", kernerr.NewNotImplementedError("artifact line resolution against stored data")
}
