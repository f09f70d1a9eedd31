// internal/diff/diff.go
package diff

import (
	"fmt"
	"strings"
)

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

type Line struct {
	Type    LineType
	Content string
	OldNum  int // 1-based, zero for additions
	NewNum  int // 1-based, zero for deletions
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

func (s Stats) Changes() int {
	return s.Additions + s.Deletions
}

func (s Stats) String() string {
	return fmt.Sprintf("+%d -%d", s.Additions, s.Deletions)
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

type Result struct {
	Hunks []Hunk
	Stats Stats
}

// Engine computes line diffs between two versions of a document.
type Engine struct {
	contextLines int
}

func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func (e *Engine) Diff(oldContent, newContent string) *Result {
	oldLines, newLines := splitLines(oldContent), splitLines(newContent)
	script := editScript(oldLines, newLines)

	result := &Result{}
	for _, line := range script {
		switch line.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Hunks = e.group(script)
	return result
}

// Stat is a shorthand for the change counts between two documents.
func Stat(oldContent, newContent string) Stats {
	return NewEngine(0).Diff(oldContent, newContent).Stats
}

// editScript walks the longest common subsequence table to produce the
// full sequence of context, deletion and addition lines.
func editScript(oldLines, newLines []string) []Line {
	n, m := len(oldLines), len(newLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	script := make([]Line, 0, n+m)
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && oldLines[i] == newLines[j]:
			script = append(script, Line{Type: Context, Content: oldLines[i], OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case i < n && (j == m || lcs[i+1][j] >= lcs[i][j+1]):
			script = append(script, Line{Type: Deletion, Content: oldLines[i], OldNum: i + 1})
			i++
		default:
			script = append(script, Line{Type: Addition, Content: newLines[j], NewNum: j + 1})
			j++
		}
	}
	return script
}

// group splits an edit script into hunks, keeping contextLines of
// unchanged lines around each change and merging hunks that touch.
func (e *Engine) group(script []Line) []Hunk {
	var hunks []Hunk
	var current *Hunk
	lastChange := -1

	for idx, line := range script {
		if line.Type == Context {
			continue
		}

		start := max(0, idx-e.contextLines)
		if current != nil && start <= lastChange+e.contextLines+1 {
			start = lastChange + 1
		} else {
			if current != nil {
				e.closeHunk(current, script, lastChange)
				hunks = append(hunks, *current)
			}
			current = &Hunk{}
		}

		current.Lines = append(current.Lines, script[start:idx+1]...)
		lastChange = idx
	}

	if current != nil {
		e.closeHunk(current, script, lastChange)
		hunks = append(hunks, *current)
	}
	return hunks
}

func (e *Engine) closeHunk(h *Hunk, script []Line, lastChange int) {
	end := min(len(script), lastChange+1+e.contextLines)
	h.Lines = append(h.Lines, script[lastChange+1:end]...)

	for _, l := range h.Lines {
		if l.Type != Addition {
			if h.OldStart == 0 {
				h.OldStart = l.OldNum
			}
			h.OldLines++
		}
		if l.Type != Deletion {
			if h.NewStart == 0 {
				h.NewStart = l.NewNum
			}
			h.NewLines++
		}
	}
}

// Format renders the result in unified diff style.
func (r *Result) Format() string {
	var buf strings.Builder

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+")
			case Deletion:
				buf.WriteString("-")
			case Context:
				buf.WriteString(" ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
