// Package engine adapts the chroma highlighting engine behind a uniform
// call: given text, a language id, and a theme id, produce styled tokens.
// The registries are resolved once at startup and are read-only afterwards,
// so concurrent Highlight calls from session goroutines need no locking.
package engine

import (
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/zjrosen/kakhl/internal/log"
)

// PlainLanguage is the built-in fallback language id. Text highlighted with
// it comes back as a single unstyled run.
const PlainLanguage = "plaintext"

// Token is one contiguous byte range of the submitted text with its style.
// End is exclusive; the wire encoding converts to per-line 1-based columns
// with inclusive ends.
type Token struct {
	Start int
	End   int
	Style Style
}

// Engine wraps the chroma lexer and style registries. Construct once with
// Load and share by reference; it is immutable after construction.
type Engine struct {
	defaultTheme string
}

// Load verifies the engine data and returns the shared handle.
// A missing default theme is a startup error: the server must not come up
// half-configured.
func Load(defaultTheme string) (*Engine, error) {
	if _, ok := styles.Registry[defaultTheme]; !ok {
		return nil, fmt.Errorf("default theme %q not present in style registry", defaultTheme)
	}
	if lexers.Get(PlainLanguage) == nil && lexers.Fallback == nil {
		return nil, fmt.Errorf("plain fallback lexer unavailable")
	}
	return &Engine{defaultTheme: defaultTheme}, nil
}

// DefaultTheme returns the configured fallback theme id.
func (e *Engine) DefaultTheme() string {
	return e.defaultTheme
}

// HasGrammar reports whether a lexer is registered for the language id.
func (e *Engine) HasGrammar(languageID string) bool {
	return lexers.Get(languageID) != nil
}

// HasTheme reports whether the theme id is registered.
func (e *Engine) HasTheme(themeID string) bool {
	_, ok := styles.Registry[themeID]
	return ok
}

// Grammars returns the registered language ids, sorted.
func (e *Engine) Grammars() []string {
	return lexers.Names(false)
}

// Themes returns the registered theme ids, sorted.
func (e *Engine) Themes() []string {
	return styles.Names()
}

// DefaultStyle returns the theme's base style. Tokens whose style equals it
// are encoded with the predefined "default" attribute instead of a fresh one.
func (e *Engine) DefaultStyle(themeID string) Style {
	style := e.resolveTheme(themeID)
	return styleFor(style, chroma.Text)
}

// Highlight tokenizes text and resolves each token's visual style.
// Failures degrade instead of propagating: an unknown language retries once
// as plain text, an unknown theme substitutes the default theme, and a
// tokenizer failure yields an empty token list. The wire protocol has no
// error channel back to the editor, so "no highlighting" is the only
// acceptable failure mode here.
func (e *Engine) Highlight(text, languageID, themeID string) ([]Token, error) {
	lexer := lexers.Get(languageID)
	if lexer == nil {
		log.Warn(log.CatEngine, "unknown language, falling back to plain",
			"language", languageID)
		lexer = plainLexer()
	}
	lexer = chroma.Coalesce(lexer)

	style := e.resolveTheme(themeID)

	tokens, err := tokenize(lexer, text)
	if err != nil {
		log.Warn(log.CatEngine, "tokenize failed, retrying as plain",
			"language", languageID, "error", err)
		tokens, err = tokenize(chroma.Coalesce(plainLexer()), text)
		if err != nil {
			log.ErrorErr(log.CatEngine, "plain tokenize also failed", err,
				"language", languageID)
			return nil, nil
		}
	}

	out := make([]Token, 0, len(tokens))
	offset := 0
	for _, tok := range tokens {
		n := len(tok.Value)
		if n == 0 {
			continue
		}
		out = append(out, Token{
			Start: offset,
			End:   offset + n,
			Style: styleFor(style, tok.Type),
		})
		offset += n
	}
	return out, nil
}

// resolveTheme returns the style for themeID, substituting the default theme
// (then the registry fallback) when the id is unknown.
func (e *Engine) resolveTheme(themeID string) *chroma.Style {
	if style, ok := styles.Registry[themeID]; ok {
		return style
	}
	log.Warn(log.CatEngine, "unknown theme, substituting default",
		"theme", themeID, "default", e.defaultTheme)
	if style, ok := styles.Registry[e.defaultTheme]; ok {
		return style
	}
	return styles.Fallback
}

func plainLexer() chroma.Lexer {
	if lexer := lexers.Get(PlainLanguage); lexer != nil {
		return lexer
	}
	return lexers.Fallback
}

func tokenize(lexer chroma.Lexer, text string) ([]chroma.Token, error) {
	it, err := lexer.Tokenise(nil, text)
	if err != nil {
		return nil, err
	}
	return it.Tokens(), nil
}

// styleFor resolves the concrete visual style for a token type under a theme,
// filling unset colors from the theme's base entries.
func styleFor(style *chroma.Style, tokenType chroma.TokenType) Style {
	entry := style.Get(tokenType)
	base := style.Get(chroma.Text)
	background := style.Get(chroma.Background)

	fg := entry.Colour
	if !fg.IsSet() {
		fg = base.Colour
	}
	bg := entry.Background
	if !bg.IsSet() {
		bg = background.Background
	}

	return Style{
		Foreground: normalizeHex(colourHex(fg)),
		Background: normalizeHex(colourHex(bg)),
		Bold:       entry.Bold == chroma.Yes,
		Italic:     entry.Italic == chroma.Yes,
		Underline:  entry.Underline == chroma.Yes,
	}
}

func colourHex(c chroma.Colour) string {
	if !c.IsSet() {
		return ""
	}
	return c.String()
}
