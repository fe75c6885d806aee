package actions

import (
	"regexp"
	"strings"
)

var maskRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ReplaceMasks substitutes {{name}} placeholders from replacements.
// Placeholders without a substitution stay in the text verbatim.
func ReplaceMasks(text string, replacements map[string]string) string {
	return maskRegex.ReplaceAllStringFunc(text, func(mask string) string {
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(mask, "{{"), "}}"))
		if value, ok := replacements[key]; ok {
			return value
		}
		return mask
	})
}
