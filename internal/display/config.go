package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DisplayConfig holds configuration for visual display options
type DisplayConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	ShowProgress bool   `mapstructure:"show_progress" yaml:"show_progress"`
	UseIcons     bool   `mapstructure:"use_icons" yaml:"use_icons"`

	VerboseMode bool `mapstructure:"verbose" yaml:"verbose"`
	QuietMode   bool `mapstructure:"quiet" yaml:"quiet"`

	TableStyle    string `mapstructure:"table_style" yaml:"table_style"`
	MaxTableWidth int    `mapstructure:"max_table_width" yaml:"max_table_width"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
}

const (
	ThemeDark         = "dark"
	ThemeLight        = "light"
	ThemeHighContrast = "high-contrast"
)

var (
	validThemes      = []string{ThemeDark, ThemeLight, ThemeHighContrast}
	validTableStyles = []string{"default", "rounded", "compact"}
)

// DefaultDisplayConfig returns a default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled:  true,
		Theme:         ThemeDark,
		OutputFormat:  string(FormatTable),
		ShowProgress:  true,
		UseIcons:      true,
		TableStyle:    "default",
		MaxTableWidth: 120,
		Writer:        os.Stdout,
	}
}

// Validate validates the display configuration
func (dc *DisplayConfig) Validate() error {
	var errs []string

	if !contains(validThemes, dc.Theme) {
		errs = append(errs, fmt.Sprintf("invalid theme '%s', must be one of: %s", dc.Theme, strings.Join(validThemes, ", ")))
	}
	if _, ok := ParseOutputFormat(dc.OutputFormat); !ok {
		errs = append(errs, fmt.Sprintf("invalid output format '%s', must be one of: table, compact, json, yaml", dc.OutputFormat))
	}
	if !contains(validTableStyles, dc.TableStyle) {
		errs = append(errs, fmt.Sprintf("invalid table style '%s', must be one of: %s", dc.TableStyle, strings.Join(validTableStyles, ", ")))
	}
	if dc.MaxTableWidth != 0 && (dc.MaxTableWidth < 40 || dc.MaxTableWidth > 300) {
		errs = append(errs, fmt.Sprintf("max table width must be between 40 and 300, got %d", dc.MaxTableWidth))
	}
	if dc.VerboseMode && dc.QuietMode {
		errs = append(errs, "verbose and quiet modes are mutually exclusive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration options
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = ThemeDark
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = string(FormatTable)
	}
	if dc.TableStyle == "" {
		dc.TableStyle = "default"
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
}

func (dc *DisplayConfig) Format() OutputFormat {
	f, ok := ParseOutputFormat(dc.OutputFormat)
	if !ok {
		return FormatTable
	}
	return f
}

// IsColorEnabled returns true if colors should be used
func (dc *DisplayConfig) IsColorEnabled() bool {
	return dc.ColorEnabled && !dc.QuietMode && !dc.Format().structured()
}

// IsProgressEnabled returns true if progress lines should be shown
func (dc *DisplayConfig) IsProgressEnabled() bool {
	return dc.ShowProgress && !dc.QuietMode && !dc.Format().structured()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
