package artifact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Apply applies a parsed op list to content, per §4.7's fixed application
// order: removes and moves first, in descending line order (so later line
// numbers stay valid while earlier ones are deleted), then adds and
// replaces, in ascending line order. Out-of-range line references fail.
func Apply(content string, ops []Op) (string, error) {
	lines := splitLines(content)

	var removesMoves, addsReplaces []Op
	for _, op := range ops {
		switch op.Kind {
		case OpRemove, OpMove:
			removesMoves = append(removesMoves, op)
		case OpInsert, OpReplace:
			addsReplaces = append(addsReplaces, op)
		}
	}

	sort.SliceStable(removesMoves, func(i, j int) bool { return removesMoves[i].Line > removesMoves[j].Line })
	sort.SliceStable(addsReplaces, func(i, j int) bool { return addsReplaces[i].Line < addsReplaces[j].Line })

	for _, op := range removesMoves {
		var err error
		switch op.Kind {
		case OpRemove:
			lines, err = applyRemove(lines, op)
		case OpMove:
			lines, err = applyMove(lines, op)
		}
		if err != nil {
			return "", err
		}
	}

	for _, op := range addsReplaces {
		var err error
		switch op.Kind {
		case OpInsert:
			lines, err = applyInsert(lines, op)
		case OpReplace:
			lines, err = applyReplace(lines, op)
		}
		if err != nil {
			return "", err
		}
	}

	return strings.Join(lines, "\n"), nil
}

func applyRemove(lines []string, op Op) ([]string, error) {
	if op.Line < 1 || op.Line > len(lines) {
		return nil, lineRangeErr(op.Line, len(lines))
	}
	idx := op.Line - 1
	return append(append([]string{}, lines[:idx]...), lines[idx+1:]...), nil
}

func applyMove(lines []string, op Op) ([]string, error) {
	if op.Line < 1 || op.Line > len(lines) {
		return nil, lineRangeErr(op.Line, len(lines))
	}
	idx := op.Line - 1
	moved := lines[idx]
	rest := append(append([]string{}, lines[:idx]...), lines[idx+1:]...)

	target := op.Target - 1
	if target < 0 {
		target = 0
	}
	if target > len(rest) {
		target = len(rest)
	}

	out := make([]string, 0, len(rest)+1)
	out = append(out, rest[:target]...)
	out = append(out, moved)
	out = append(out, rest[target:]...)
	return out, nil
}

func applyInsert(lines []string, op Op) ([]string, error) {
	// An insert targets the line it precedes; "+1" inserts before the
	// first line, "+len(lines)+1" appends after the last.
	if op.Line < 1 || op.Line > len(lines)+1 {
		return nil, lineRangeErr(op.Line, len(lines))
	}
	idx := op.Line - 1
	text := "[" + op.Fragment + "]"

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:idx]...)
	out = append(out, text)
	out = append(out, lines[idx:]...)
	return out, nil
}

func applyReplace(lines []string, op Op) ([]string, error) {
	if op.Line < 1 || op.Line > len(lines) {
		return nil, lineRangeErr(op.Line, len(lines))
	}
	lines[op.Line-1] = op.New
	return lines, nil
}

func lineRangeErr(line, total int) error {
	return kernerr.NewValidationError("ops", fmt.Sprintf("line %d out of range (content has %d lines)", line, total))
}

func splitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}
