package engine

// Style is a concrete visual appearance: colors plus font attributes.
// It is a comparable value type; the style cache keys on the full tuple.
// Colors are normalized #rrggbb hex (alpha is dropped before comparison
// since the editor protocol cannot express it). Strikethrough is carried
// for completeness; the current engine never emits it.
type Style struct {
	Foreground    string
	Background    string
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
}

// IsZero reports whether the style carries no visual information.
func (s Style) IsZero() bool {
	return s == Style{}
}

// normalizeHex truncates #rrggbbaa to #rrggbb. Other forms pass through.
func normalizeHex(hex string) string {
	if len(hex) == 9 {
		return hex[:7]
	}
	return hex
}
