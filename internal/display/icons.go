package display

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

var icons = map[string]Icon{
	"success": {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
	"error":   {Unicode: "✗", ASCII: "[ERR]", Color: ColorRed},
	"warning": {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":    {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
	"skip":    {Unicode: "↷", ASCII: "[SKIP]", Color: ColorWhite},
	"dry-run": {Unicode: "○", ASCII: "[PLAN]", Color: ColorBlue},
}

// IconSystem renders icons with an ASCII fallback
type IconSystem struct {
	unicode bool
	enabled bool
}

// NewIconSystem picks Unicode icons for terminals that can show them
func NewIconSystem(out io.Writer, enabled bool) *IconSystem {
	return &IconSystem{unicode: detectUnicodeSupport(out), enabled: enabled}
}

func detectUnicodeSupport(out io.Writer) bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if t := os.Getenv("TERM"); t == "dumb" || t == "vt100" {
		return false
	}
	f, ok := out.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// IsUnicodeSupported reports whether Unicode glyphs are rendered
func (is *IconSystem) IsUnicodeSupported() bool {
	return is.unicode
}

// Render returns the icon text for name, colored when colors are on. It is
// empty when icons are disabled or name is unknown.
func (is *IconSystem) Render(name string, colors ColorSystem) string {
	icon, ok := icons[name]
	if !ok || !is.enabled {
		return ""
	}
	text := icon.ASCII
	if is.unicode {
		text = icon.Unicode
	}
	if colors != nil {
		text = colors.Colorize(text, icon.Color)
	}
	return text
}
