// Package artifact implements the artifact delta-and-commit engine (C7):
// the line-addressed delta operation language, optimistic-lock commit
// protocol, and diff between commits.
package artifact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Op kinds (§4.7).
const (
	OpInsert  = "insert"  // +<line>:<fragment>
	OpRemove  = "remove"  // -<line>
	OpReplace = "replace" // ~<line>:<old>→<new>
	OpMove    = "move"    // ><line>@<target>
)

// Op is one parsed delta operation.
type Op struct {
	Kind     string
	Line     int    // 1-based target line
	Fragment string // OpInsert
	Old      string // OpReplace
	New      string // OpReplace
	Target   int    // OpMove destination line
}

var (
	reInsert  = regexp.MustCompile(`^\+(\d+):(\^[0-9a-z]{3})$`)
	reRemove  = regexp.MustCompile(`^-(\d+)$`)
	reReplace = regexp.MustCompile(`^~(\d+):(.*)\x{2192}(.*)$`)
	reMove    = regexp.MustCompile(`^>(\d+)@(\d+)$`)
)

// ParseOps parses an ops string into an ordered list of Op. Empty lines are
// skipped; any non-matching line fails with a ValidationError naming the
// offending 1-based position within the ops text (§4.7).
func ParseOps(ops string) ([]Op, error) {
	var out []Op
	lines := strings.Split(ops, "\n")
	for i, raw := range lines {
		pos := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		op, ok := parseOpLine(line)
		if !ok {
			return nil, kernerr.NewValidationError("ops", fmt.Sprintf("line %d: unrecognized delta operation %q", pos, line))
		}
		out = append(out, op)
	}
	return out, nil
}

func parseOpLine(line string) (Op, bool) {
	switch {
	case strings.HasPrefix(line, "+"):
		m := reInsert.FindStringSubmatch(line)
		if m == nil {
			return Op{}, false
		}
		n, _ := strconv.Atoi(m[1])
		return Op{Kind: OpInsert, Line: n, Fragment: m[2]}, true

	case strings.HasPrefix(line, "-"):
		m := reRemove.FindStringSubmatch(line)
		if m == nil {
			return Op{}, false
		}
		n, _ := strconv.Atoi(m[1])
		return Op{Kind: OpRemove, Line: n}, true

	case strings.HasPrefix(line, "~"):
		m := reReplace.FindStringSubmatch(line)
		if m == nil {
			return Op{}, false
		}
		n, _ := strconv.Atoi(m[1])
		return Op{Kind: OpReplace, Line: n, Old: m[2], New: m[3]}, true

	case strings.HasPrefix(line, ">"):
		m := reMove.FindStringSubmatch(line)
		if m == nil {
			return Op{}, false
		}
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		return Op{Kind: OpMove, Line: from, Target: to}, true

	default:
		return Op{}, false
	}
}

// FormatOp reprints a parsed Op in the canonical ops-string form.
// Round-tripping FormatOp(ParseOps(x)) must reproduce the same structural
// op list (§8 "Delta round-trip").
func FormatOp(op Op) string {
	switch op.Kind {
	case OpInsert:
		return fmt.Sprintf("+%d:%s", op.Line, op.Fragment)
	case OpRemove:
		return fmt.Sprintf("-%d", op.Line)
	case OpReplace:
		return fmt.Sprintf("~%d:%s→%s", op.Line, op.Old, op.New)
	case OpMove:
		return fmt.Sprintf(">%d@%d", op.Line, op.Target)
	default:
		return ""
	}
}
