package kak

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/kakhl/internal/engine"
	"github.com/zjrosen/kakhl/internal/stylecache"
)

var defaultStyle = engine.Style{Foreground: "#f8f8f2", Background: "#282a36"}

func keyword() engine.Style {
	return engine.Style{Foreground: "#ff79c6", Background: "#282a36", Bold: true}
}

// === FaceSpec ===

func TestFaceSpec_DefaultBackgroundPreservesTransparency(t *testing.T) {
	spec := FaceSpec(keyword(), defaultStyle.Background)
	require.Equal(t, "rgb:ff79c6,default+b", spec)
}

func TestFaceSpec_ExplicitBackground(t *testing.T) {
	s := engine.Style{Foreground: "#f8f8f2", Background: "#44475a", Italic: true, Underline: true}
	require.Equal(t, "rgb:f8f8f2,rgb:44475a+iu", FaceSpec(s, defaultStyle.Background))
}

func TestFaceSpec_NoAttrs(t *testing.T) {
	s := engine.Style{Foreground: "#50fa7b", Background: "#44475a"}
	require.Equal(t, "rgb:50fa7b,rgb:44475a", FaceSpec(s, defaultStyle.Background))
}

func TestFaceSpec_UnsetColorsFallBackToDefault(t *testing.T) {
	s := engine.Style{Foreground: "", Background: "#44475a"}
	require.Equal(t, "default,rgb:44475a", FaceSpec(s, defaultStyle.Background))

	s = engine.Style{Foreground: "#50fa7b", Background: ""}
	require.Equal(t, "rgb:50fa7b,default", FaceSpec(s, defaultStyle.Background))
}

// === Quote ===

func TestQuote_DoublesSingleQuotes(t *testing.T) {
	require.Equal(t, "it''s a *scratch*", Quote("it's a *scratch*"))
	require.Equal(t, "plain", Quote("plain"))
}

// === BuildResponse ===

func TestBuildResponse_DefinitionsPrecedeRanges(t *testing.T) {
	cache := stylecache.New()
	content := "fn main() {}\n"
	tokens := []engine.Token{
		{Start: 0, End: 2, Style: keyword()},
		{Start: 2, End: 13, Style: defaultStyle},
	}

	out := BuildResponse(content, tokens, "dracula", defaultStyle, cache)

	defIdx := strings.Index(out, "set-face global kakhl_")
	rangeIdx := strings.Index(out, "set-option buffer kakhl_hl_ranges")
	require.GreaterOrEqual(t, defIdx, 0)
	require.Greater(t, rangeIdx, defIdx)
}

func TestBuildResponse_OneBasedInclusiveColumns(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 2, Style: keyword()}}

	out := BuildResponse("abc", tokens, "dracula", defaultStyle, cache)
	// Bytes 0..1 of line one become columns 1 through 2.
	require.Contains(t, out, " 1.1,1.2|kakhl_")
}

func TestBuildResponse_TokenSpanningNewlineSplitsPerLine(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 5, Style: keyword()}}

	out := BuildResponse("ab\ncd", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, out, " 1.1,1.2|kakhl_0001")
	require.Contains(t, out, " 2.1,2.2|kakhl_0001")
}

func TestBuildResponse_RangesOnLaterLinesUseLineLocalColumns(t *testing.T) {
	cache := stylecache.New()
	content := "let x = 1\nlet y = 2\n"
	// "let" on the second line, bytes 10..12.
	tokens := []engine.Token{{Start: 10, End: 13, Style: keyword()}}

	out := BuildResponse(content, tokens, "dracula", defaultStyle, cache)
	require.Contains(t, out, " 2.1,2.3|kakhl_")
}

func TestBuildResponse_TrailingNewlineIsNotPainted(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 4, Style: defaultStyle}}

	out := BuildResponse("abc\n", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, out, " 1.1,1.3|default")
	require.NotContains(t, out, "1.4")
}

func TestBuildResponse_NewlineOnlyTokenProducesNoRange(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 1, End: 2, Style: keyword()}}

	out := BuildResponse("a\nb", tokens, "dracula", defaultStyle, cache)
	require.NotContains(t, out, "|kakhl_")
	require.NotContains(t, out, "set-face")
}

func TestBuildResponse_DefaultStyleUsesDefaultFace(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 5, Style: defaultStyle}}

	out := BuildResponse("hello", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, out, "1.1,1.5|default")
	require.NotContains(t, out, "set-face")
	require.Equal(t, 0, cache.Size("dracula"))
}

// Face definitions are re-sent with every payload, so an editor session that
// only ever receives later responses still has every face its ranges name.
func TestBuildResponse_EveryResponseDefinesReferencedFaces(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 2, Style: keyword()}}

	first := BuildResponse("ab", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, first, "set-face global kakhl_0001")

	second := BuildResponse("ab", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, second, "set-face global kakhl_0001")
	// The id stays stable across responses.
	require.Contains(t, second, "1.1,1.2|kakhl_0001")
}

func TestBuildResponse_StyleDefinedOncePerResponse(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{
		{Start: 0, End: 2, Style: keyword()},
		{Start: 3, End: 5, Style: keyword()},
	}

	out := BuildResponse("ab cd", tokens, "dracula", defaultStyle, cache)
	require.Equal(t, 1, strings.Count(out, "set-face global"))
	require.Equal(t, 2, strings.Count(out, "|kakhl_0001"))
}

func TestBuildResponse_ThemeSwitchRetiresAttributeIDs(t *testing.T) {
	cache := stylecache.New()
	tokens := []engine.Token{{Start: 0, End: 2, Style: keyword()}}

	_ = BuildResponse("ab", tokens, "dracula", defaultStyle, cache)
	cache.OnThemeSwitch("dracula")

	out := BuildResponse("ab", tokens, "dracula", defaultStyle, cache)
	require.Contains(t, out, "set-face global kakhl_0002")
	require.NotContains(t, out, "kakhl_0001")
}

func TestBuildResponse_EmptyTokensStillSetsOption(t *testing.T) {
	cache := stylecache.New()
	out := BuildResponse("", nil, "dracula", defaultStyle, cache)
	require.Equal(t, "set-option buffer kakhl_hl_ranges %val{timestamp}\n", out)
}

// Every attribute id referenced in a range is either "default" or defined
// earlier in the same payload.
func TestBuildResponse_NoUndefinedAttributeReferences(t *testing.T) {
	cache := stylecache.New()
	styles := []engine.Style{
		keyword(),
		{Foreground: "#50fa7b", Background: "#282a36"},
		{Foreground: "#8be9fd", Background: "#282a36", Italic: true},
	}
	content := strings.Repeat("x", 9)

	for round := 0; round < 3; round++ {
		var tokens []engine.Token
		offset := 0
		for _, s := range styles {
			tokens = append(tokens, engine.Token{Start: offset, End: offset + 3, Style: s})
			offset += 3
		}
		out := BuildResponse(content, tokens, "dracula", defaultStyle, cache)

		defined := map[string]bool{"default": true}
		for _, line := range strings.Split(out, "\n") {
			if rest, ok := strings.CutPrefix(line, "set-face global "); ok {
				name, _, _ := strings.Cut(rest, " ")
				defined[name] = true
			}
		}
		rangesLine := out[strings.Index(out, "set-option"):]
		// Fields: set-option buffer kakhl_hl_ranges %val{timestamp} <ranges...>
		for _, field := range strings.Fields(rangesLine)[4:] {
			_, attr, ok := strings.Cut(field, "|")
			require.True(t, ok)
			require.True(t, defined[attr], "attribute %s referenced but not defined in this payload", attr)
		}
	}
}
