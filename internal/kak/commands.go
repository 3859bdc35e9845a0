// Package kak builds and delivers the editor-side protocol: face definition
// commands for every style a response references followed by a single
// range-specs update in 1-based line.column coordinates.
package kak

import (
	"strings"

	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/stylecache"
)

// rangesOption is the buffer option the editor-side script renders from.
const rangesOption = "kakhl_hl_ranges"

// FaceDef pairs an attribute id with its face specification.
type FaceDef struct {
	Name string
	Spec string
}

// BuildResponse converts highlighted tokens into the wire payload. Every face
// a range references is defined in the same payload, so the commands are
// self-contained for whichever editor session receives them. Token byte
// offsets are converted to the coordinates the ranges highlighter expects:
// one range per line, 1-based columns, inclusive ends. Tokens spanning a
// newline are split at line boundaries.
func BuildResponse(content string, tokens []engine.Token, themeID string, defaultStyle engine.Style, cache *stylecache.Cache) string {
	var defs []FaceDef
	defined := make(map[string]bool)
	ranges := make([]string, 0, len(tokens))

	starts := lineStarts(content)
	line := 0
	for _, tok := range tokens {
		if tok.End <= tok.Start {
			continue
		}

		name := "default"
		if tok.Style != defaultStyle {
			name = cache.AttributeFor(themeID, tok.Style)
		}

		end := tok.End
		if end > len(content) {
			end = len(content)
		}
		for line > 0 && tok.Start < starts[line] {
			line--
		}
		for pos := tok.Start; pos < end; {
			for line+1 < len(starts) && pos >= starts[line+1] {
				line++
			}
			lineEnd := len(content)
			if line+1 < len(starts) {
				lineEnd = starts[line+1]
			}
			segEnd := end
			if segEnd > lineEnd {
				segEnd = lineEnd
			}
			next := segEnd
			// The newline itself has no visible cell to paint.
			if segEnd > pos && content[segEnd-1] == '\n' {
				segEnd--
			}
			if segEnd > pos {
				if name != "default" && !defined[name] {
					defined[name] = true
					defs = append(defs, FaceDef{Name: name, Spec: FaceSpec(tok.Style, defaultStyle.Background)})
				}
				col := starts[line]
				var r strings.Builder
				r.Grow(24)
				writeInt(&r, line+1)
				r.WriteByte('.')
				writeInt(&r, pos-col+1)
				r.WriteByte(',')
				writeInt(&r, line+1)
				r.WriteByte('.')
				writeInt(&r, segEnd-col)
				r.WriteByte('|')
				r.WriteString(name)
				ranges = append(ranges, r.String())
			}
			pos = next
		}
	}

	return Commands(defs, ranges)
}

// lineStarts returns the byte offset of each line's first character.
func lineStarts(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// Commands renders face definitions followed by the range-set command.
func Commands(defs []FaceDef, ranges []string) string {
	var b strings.Builder
	for _, def := range defs {
		b.WriteString("set-face global ")
		b.WriteString(def.Name)
		b.WriteString(" %{")
		b.WriteString(def.Spec)
		b.WriteString("}\n")
	}

	b.WriteString("set-option buffer ")
	b.WriteString(rangesOption)
	b.WriteString(" %val{timestamp}")
	if len(ranges) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(ranges, " "))
	}
	b.WriteByte('\n')
	return b.String()
}

// FaceSpec encodes a style as a face specification: "rgb:<fg>,<bg>[+attrs]".
// A background equal to the theme default becomes "default" so terminal
// transparency is preserved; a colour the theme leaves unset also falls back
// to "default" rather than producing an empty rgb value.
func FaceSpec(s engine.Style, defaultBg string) string {
	var attrs strings.Builder
	if s.Bold {
		attrs.WriteByte('b')
	}
	if s.Italic {
		attrs.WriteByte('i')
	}
	if s.Underline {
		attrs.WriteByte('u')
	}
	if s.Strikethrough {
		attrs.WriteByte('s')
	}

	fg := stripHash(s.Foreground)
	bg := stripHash(s.Background)

	fgSpec := "rgb:" + fg
	if fg == "" {
		fgSpec = "default"
	}
	bgSpec := "rgb:" + bg
	if bg == "" || bg == stripHash(defaultBg) {
		bgSpec = "default"
	}

	spec := fgSpec + "," + bgSpec
	if attrs.Len() > 0 {
		spec += "+" + attrs.String()
	}
	return spec
}

// Quote escapes a string for a single-quoted kakoune argument.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func stripHash(hex string) string {
	return strings.TrimPrefix(hex, "#")
}

func writeInt(b *strings.Builder, n int) {
	if n < 0 {
		n = 0
	}
	var buf [12]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	b.Write(buf[i:])
}
