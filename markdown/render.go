// Package markdown renders the client's help and notice texts.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
)

var (
	mu        sync.Mutex
	styleName = styles.AutoStyle
	cache     = map[int]*glamour.TermRenderer{}
)

// SetStyle selects the glamour style used by later renders: "dark", "light",
// "notty" (no escape sequences) or "auto".
func SetStyle(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch name {
	case styles.DarkStyle, styles.LightStyle, styles.NoTTYStyle, styles.AutoStyle:
	default:
		name = styles.AutoStyle
	}
	if name != styleName {
		styleName = name
		cache = map[int]*glamour.TermRenderer{}
	}
}

func renderer(width int) *glamour.TermRenderer {
	mu.Lock()
	defer mu.Unlock()
	if r, ok := cache[width]; ok {
		return r
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if styleName == styles.AutoStyle {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(styleName))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		r = nil
	}
	cache[width] = r
	return r
}

// RenderWidth renders md wrapped at width. Falls back to the raw text if the
// renderer is unavailable or fails.
func RenderWidth(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	if width < 20 {
		width = 20
	}
	r := renderer(width)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// glamour pads with blank lines; trim them for inline display.
	return strings.Trim(out, "\n")
}
