// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Result contains the complete line-diff information for one file
type Result struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine provides line-level diffing for text content
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two text contents.
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	result := &Result{}
	ops := diffOps(oldLines, newLines)
	result.Hunks = e.buildHunks(ops, oldLines, newLines)

	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

type opType int

const (
	opEqual opType = iota
	opDelete
	opInsert
)

type op struct {
	typ      opType
	oldIndex int
	newIndex int
}

// diffOps walks an LCS matrix and emits edit operations in forward order.
func diffOps(oldLines, newLines [][]byte) []op {
	m, n := len(oldLines), len(newLines)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				lcs[i][j] = lcs[i-1][j-1] + 1
			} else {
				lcs[i][j] = max(lcs[i-1][j], lcs[i][j-1])
			}
		}
	}

	var reversed []op
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			reversed = append(reversed, op{opEqual, i - 1, j - 1})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			reversed = append(reversed, op{opInsert, i, j - 1})
			j--
		default:
			reversed = append(reversed, op{opDelete, i - 1, j})
			i--
		}
	}

	ops := make([]op, len(reversed))
	for k, o := range reversed {
		ops[len(reversed)-1-k] = o
	}
	return ops
}

// buildHunks groups edits into hunks padded with context. Equal lines
// between edits are buffered: a gap of at most 2*contextLines keeps the
// edits in one hunk, a larger gap closes the hunk with trailing context
// and opens a fresh one, so no line is ever emitted twice.
func (e *Engine) buildHunks(ops []op, oldLines, newLines [][]byte) []Hunk {
	var hunks []Hunk
	var current *Hunk
	var pending []int // old-line indices of equal lines since the last edit

	appendContext := func(idx int) {
		current.Lines = append(current.Lines, Line{Type: Context, Content: string(oldLines[idx])})
		current.OldLines++
		current.NewLines++
	}

	flush := func() {
		if current == nil {
			return
		}
		for i, idx := range pending {
			if i >= e.contextLines {
				break
			}
			appendContext(idx)
		}
		hunks = append(hunks, *current)
		current = nil
	}

	for _, o := range ops {
		if o.typ == opEqual {
			if current != nil {
				pending = append(pending, o.oldIndex)
			}
			continue
		}

		if current != nil && len(pending) > 2*e.contextLines {
			flush()
		}

		if current == nil {
			current = &Hunk{OldStart: o.oldIndex + 1, NewStart: o.newIndex + 1}
			// leading context
			start := max(0, o.oldIndex-e.contextLines)
			for k := start; k < o.oldIndex; k++ {
				appendContext(k)
				current.OldStart--
				current.NewStart--
			}
		} else {
			// The gap is small enough to bridge in place.
			for _, idx := range pending {
				appendContext(idx)
			}
		}
		pending = nil

		switch o.typ {
		case opDelete:
			current.Lines = append(current.Lines, Line{Type: Deletion, Content: string(oldLines[o.oldIndex])})
			current.OldLines++
		case opInsert:
			current.Lines = append(current.Lines, Line{Type: Addition, Content: string(newLines[o.newIndex])})
			current.NewLines++
		}
	}
	flush()

	return hunks
}

// Format returns a string representation of the diff
func (r *Result) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
