package display

import (
	"io"

	"platform-snapshot/internal/migration"
	"platform-snapshot/internal/snapshot"
)

// DisplayService provides centralized formatting and output management
type DisplayService interface {
	// Output formatting
	PrintHeader(title string)
	PrintTable(headers []string, rows [][]string)

	// Progress indicators
	StartSpinner(message string) SpinnerHandle
	StopSpinner(handle SpinnerHandle, finalMessage string)
	KindProgress(stats *migration.KindStats)

	// Status messages
	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	// Reports
	RenderImportSummary(summary *migration.Summary) error
	RenderRestoreReport(report *migration.RestoreReport) error
	RenderResetReport(report *migration.ResetReport) error
	RenderSnapshots(objects []snapshot.ObjectInfo) error

	// Configuration
	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCompact OutputFormat = "compact"
)

// ParseOutputFormat validates a --format value
func ParseOutputFormat(s string) (OutputFormat, bool) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML, FormatCompact:
		return f, true
	case "":
		return FormatTable, true
	}
	return "", false
}

// structured reports whether the format is meant for machines
func (f OutputFormat) structured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary   Color
	Success   Color
	Warning   Color
	Error     Color
	Info      Color
	Muted     Color
	Highlight Color
}

// SpinnerHandle represents a handle to a running spinner
type SpinnerHandle interface {
	IsActive() bool
}

// SpinnerStyle defines the visual style of a spinner
type SpinnerStyle struct {
	Frames []string
	Delay  int // milliseconds between frames
}

var DefaultSpinnerStyles = map[string]SpinnerStyle{
	"dots": {
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		Delay:  80,
	},
	"line": {
		Frames: []string{"-", "\\", "|", "/"},
		Delay:  100,
	},
}
