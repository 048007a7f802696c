// Package segment splits message text into literal runs and link tokens so
// the renderer can ask for a preview of each link.
package segment

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind tells a literal run from a link token.
type Kind int

const (
	Literal Kind = iota
	Link
)

func (k Kind) String() string {
	if k == Link {
		return "link"
	}
	return "literal"
}

// Segment is one piece of a message. For a Link, Text is exactly the URL; for
// a Literal it includes the surrounding whitespace.
type Segment struct {
	Kind Kind
	Text string
}

// Split tokenises text on whitespace. A token is a Link iff it parses on its
// own as an absolute URL with a scheme and a host; punctuation glued to a URL
// keeps the whole token literal. Literals keep their trailing whitespace;
// whitespace after a link becomes the leading text of the following literal.
// Join(Split(text)) == text for every input.
func Split(text string) []Segment {
	var (
		out     []Segment
		pending string // whitespace not yet attached to a literal
	)
	rest := text
	for rest != "" {
		ws := leadingSpace(rest)
		if ws > 0 {
			pending += rest[:ws]
			rest = rest[ws:]
			continue
		}
		word := rest[:wordLen(rest)]
		rest = rest[len(word):]
		trail := rest[:leadingSpace(rest)]
		rest = rest[len(trail):]

		if IsLink(word) {
			if pending != "" {
				out = append(out, Segment{Kind: Literal, Text: pending})
			}
			out = append(out, Segment{Kind: Link, Text: word})
			pending = trail
			continue
		}
		out = append(out, Segment{Kind: Literal, Text: pending + word + trail})
		pending = ""
	}
	if pending != "" {
		out = append(out, Segment{Kind: Literal, Text: pending})
	}
	return out
}

// Join concatenates segments back into text.
func Join(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Links returns the URLs of every Link segment, in order.
func Links(segs []Segment) []string {
	var out []string
	for _, s := range segs {
		if s.Kind == Link {
			out = append(out, s.Text)
		}
	}
	return out
}

// IsLink reports whether token is an absolute URL.
func IsLink(token string) bool {
	u, err := url.Parse(token)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func leadingSpace(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if !unicode.IsSpace(r) {
			break
		}
		n += size
	}
	return n
}

func wordLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if unicode.IsSpace(r) {
			break
		}
		n += size
	}
	return n
}
