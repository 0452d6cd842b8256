package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"platform-snapshot/internal/migration"
)

// displayService implements the DisplayService interface
type displayService struct {
	config      *DisplayConfig
	colorSystem ColorSystem
	iconSystem  *IconSystem
	theme       ColorTheme
	writer      io.Writer
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	ds := &displayService{config: config}
	ds.SetOutput(config.Writer)
	return ds
}

// PrintHeader prints a formatted header
func (ds *displayService) PrintHeader(title string) {
	if ds.quiet() {
		return
	}
	separator := strings.Repeat("=", len(title)+4)
	header := fmt.Sprintf("%s\n  %s\n%s", separator, title, separator)
	fmt.Fprintln(ds.writer, ds.colorSystem.Colorize(header, ds.theme.Primary))
}

// PrintTable prints a formatted table
func (ds *displayService) PrintTable(headers []string, rows [][]string) {
	formatter := ds.newTable()
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(ds.writer)
}

func (ds *displayService) newTable() TableFormatter {
	formatter := NewTableFormatter(ds.colorSystem, ds.theme)
	style := TableStyleByName(ds.config.TableStyle)
	if ds.config.Format() == FormatCompact {
		style = CompactTableStyle
	}
	style.MaxWidth = ds.config.MaxTableWidth
	formatter.SetStyle(style)
	return formatter
}

func (ds *displayService) Success(message string) {
	ds.printStatusMessage("success", "SUCCESS", message, ds.theme.Success)
}

func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("warning", "WARNING", message, ds.theme.Warning)
}

// Error prints even in quiet mode
func (ds *displayService) Error(message string) {
	ds.printStatusMessage("error", "ERROR", message, ds.theme.Error)
}

func (ds *displayService) Info(message string) {
	if ds.quiet() {
		return
	}
	ds.printStatusMessage("info", "INFO", message, ds.theme.Info)
}

// SetOutput sets the output writer and re-detects terminal capabilities
func (ds *displayService) SetOutput(writer io.Writer) {
	ds.writer = writer
	ds.config.Writer = writer
	ds.theme = GetThemeByName(ds.config.Theme)
	ds.colorSystem = NewColorSystem(writer, ds.config.IsColorEnabled())
	ds.iconSystem = NewIconSystem(writer, ds.config.UseIcons)
}

func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}

// StartSpinner animates message until StopSpinner. Outside a terminal it
// prints nothing until the final message.
func (ds *displayService) StartSpinner(message string) SpinnerHandle {
	if !ds.config.IsProgressEnabled() || !isTerminal(ds.writer) {
		return noOpSpinner{}
	}

	style := DefaultSpinnerStyles["line"]
	if ds.iconSystem.IsUnicodeSupported() {
		style = DefaultSpinnerStyles["dots"]
	}
	s := newSpinner(message, style, ds.writer, ds.colorSystem, ds.theme)
	s.start()
	return s
}

func (ds *displayService) StopSpinner(handle SpinnerHandle, finalMessage string) {
	if s, ok := handle.(*spinner); ok {
		s.stop(finalMessage)
		return
	}
	if finalMessage != "" && !ds.quiet() {
		fmt.Fprintln(ds.writer, finalMessage)
	}
}

// KindProgress prints one line when an import kind finishes
func (ds *displayService) KindProgress(stats *migration.KindStats) {
	if !ds.config.IsProgressEnabled() {
		return
	}

	var icon, detail string
	switch {
	case stats.Aborted:
		icon = "error"
		detail = ds.colorSystem.Sprintf(ds.theme.Error, "aborted: %s", stats.Error)
	case stats.DryRun:
		icon = "dry-run"
		detail = fmt.Sprintf("%d planned", stats.Planned)
	case stats.Errored > 0:
		icon = "warning"
		detail = fmt.Sprintf("%d/%d written, %d errored", stats.Succeeded(), stats.Total, stats.Errored)
	case stats.Total == 0:
		icon = "skip"
		detail = "nothing to import"
	default:
		icon = "success"
		detail = fmt.Sprintf("%d/%d written", stats.Succeeded(), stats.Total)
	}

	line := fmt.Sprintf("%-16s %s", stats.Kind, detail)
	if prefix := ds.iconSystem.Render(icon, ds.colorSystem); prefix != "" {
		line = prefix + " " + line
	}
	fmt.Fprintln(ds.writer, line)
}

func (ds *displayService) printStatusMessage(icon, level, message string, color Color) {
	if ds.config.Format().structured() {
		// keep stdout parseable
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
		return
	}
	prefix := ds.iconSystem.Render(icon, ds.colorSystem)
	if prefix == "" {
		prefix = ds.colorSystem.Colorize("["+level+"]", color)
	}
	fmt.Fprintf(ds.writer, "%s %s\n", prefix, message)
}

func (ds *displayService) quiet() bool {
	return ds.config.QuietMode
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
