package relay

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const maxUsernameRunes = 32

var usernamePolicy = bluemonday.StrictPolicy()

// SanitizeUsername strips markup and control characters from a username and
// limits its length. It returns "" when nothing usable is left.
func SanitizeUsername(name string) string {
	clean := html.UnescapeString(usernamePolicy.Sanitize(name))

	var b strings.Builder
	b.Grow(len(clean))
	n := 0
	for _, r := range clean {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if n == maxUsernameRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
