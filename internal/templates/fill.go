package templates

import (
	"regexp"
	"strings"
)

// DefaultName is the file EnsureDefault writes.
const DefaultName = "Example Template.txt"

// DefaultTemplate is the body the backend seeds for new users.
const DefaultTemplate = `Hello [CIVILITY] [LAST_NAME],

I hope this email finds you well. I am reaching out regarding [COMPANY] and our potential collaboration.

[Your personalized message here]

Best regards,
[Your name]`

// Only upper-case tokens, accented ones like [CIVILITÉ] included, are
// placeholders; "[Your name]" is prose for the author to edit.
var placeholderRE = regexp.MustCompile(`\[(\p{Lu}[\p{Lu}\p{N}_]*)\]`)

// Placeholders lists the distinct tokens in content in first-seen order,
// without brackets.
func Placeholders(content string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRE.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Fill replaces each [KEY] with values[key] where the key is matched case
// insensitively. Tokens with no value are left as they are.
func Fill(content string, values map[string]string) string {
	upper := make(map[string]string, len(values))
	for k, v := range values {
		upper[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return placeholderRE.ReplaceAllStringFunc(content, func(tok string) string {
		if v, ok := upper[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}
