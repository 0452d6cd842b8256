package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// TableFormatter interface for creating formatted tables
type TableFormatter interface {
	SetHeaders(headers []string)
	AddRow(row []string)
	AddSeparator()
	SetColumnAlignment(column int, alignment Alignment)
	SetStyle(style TableStyle)
	Render() string
	RenderTo(writer io.Writer)
}

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// TableStyle defines the visual style of a table
type TableStyle struct {
	Name            string
	BorderStyle     BorderStyle
	HeaderSeparator bool
	Padding         int
	MaxWidth        int
}

// BorderStyle defines table border characters
type BorderStyle struct {
	TopLeft     string
	TopRight    string
	BottomLeft  string
	BottomRight string
	Horizontal  string
	Vertical    string
	Cross       string
	TopTee      string
	BottomTee   string
	LeftTee     string
	RightTee    string
}

var (
	DefaultTableStyle = TableStyle{
		Name:            "default",
		BorderStyle:     ASCIIBorderStyle,
		HeaderSeparator: true,
		Padding:         1,
	}

	RoundedTableStyle = TableStyle{
		Name:            "rounded",
		BorderStyle:     RoundedBorderStyle,
		HeaderSeparator: true,
		Padding:         1,
	}

	// CompactTableStyle is minimal with no borders
	CompactTableStyle = TableStyle{
		Name:        "compact",
		BorderStyle: NoBorderStyle,
		Padding:     1,
	}
)

var (
	ASCIIBorderStyle = BorderStyle{
		TopLeft: "+", TopRight: "+", BottomLeft: "+", BottomRight: "+",
		Horizontal: "-", Vertical: "|", Cross: "+",
		TopTee: "+", BottomTee: "+", LeftTee: "+", RightTee: "+",
	}

	RoundedBorderStyle = BorderStyle{
		TopLeft: "╭", TopRight: "╮", BottomLeft: "╰", BottomRight: "╯",
		Horizontal: "─", Vertical: "│", Cross: "┼",
		TopTee: "┬", BottomTee: "┴", LeftTee: "├", RightTee: "┤",
	}

	NoBorderStyle = BorderStyle{}
)

// TableStyleByName returns the named style, the default one when unknown
func TableStyleByName(name string) TableStyle {
	switch name {
	case "rounded":
		return RoundedTableStyle
	case "compact":
		return CompactTableStyle
	default:
		return DefaultTableStyle
	}
}

type tableFormatter struct {
	headers       []string
	rows          [][]string
	separators    []int // row indices where separators should be added
	alignments    map[int]Alignment
	style         TableStyle
	colorSystem   ColorSystem
	theme         ColorTheme
	terminalWidth int
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(colorSystem ColorSystem, theme ColorTheme) TableFormatter {
	return &tableFormatter{
		alignments:    make(map[int]Alignment),
		style:         DefaultTableStyle,
		colorSystem:   colorSystem,
		theme:         theme,
		terminalWidth: getTerminalWidth(),
	}
}

func (tf *tableFormatter) SetHeaders(headers []string) {
	tf.headers = headers
}

func (tf *tableFormatter) AddRow(row []string) {
	tf.rows = append(tf.rows, row)
}

// AddSeparator adds a separator after the current row
func (tf *tableFormatter) AddSeparator() {
	tf.separators = append(tf.separators, len(tf.rows))
}

func (tf *tableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

func (tf *tableFormatter) SetStyle(style TableStyle) {
	tf.style = style
}

// Render returns the formatted table as a string
func (tf *tableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}

	widths := tf.adjustForMaxWidth(tf.calculateColumnWidths())
	b := tf.style.BorderStyle
	var result strings.Builder

	if b.Horizontal != "" {
		result.WriteString(tf.renderBorder(widths, b.TopLeft, b.TopTee, b.TopRight))
	}
	if len(tf.headers) > 0 {
		result.WriteString(tf.renderRow(tf.headers, widths, true))
		if tf.style.HeaderSeparator && b.Horizontal != "" {
			result.WriteString(tf.renderBorder(widths, b.LeftTee, b.Cross, b.RightTee))
		}
	}
	for i, row := range tf.rows {
		result.WriteString(tf.renderRow(row, widths, false))
		for _, sep := range tf.separators {
			if sep == i+1 && i < len(tf.rows)-1 && b.Horizontal != "" {
				result.WriteString(tf.renderBorder(widths, b.LeftTee, b.Cross, b.RightTee))
				break
			}
		}
	}
	if b.Horizontal != "" {
		result.WriteString(tf.renderBorder(widths, b.BottomLeft, b.BottomTee, b.BottomRight))
	}
	return result.String()
}

func (tf *tableFormatter) RenderTo(writer io.Writer) {
	fmt.Fprint(writer, tf.Render())
}

// calculateColumnWidths returns the padded width of every column
func (tf *tableFormatter) calculateColumnWidths() []int {
	numCols := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}

	widths := make([]int, numCols)
	for i, header := range tf.headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range tf.rows {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		widths[i] += tf.style.Padding * 2
	}
	return widths
}

// adjustForMaxWidth shrinks the widest columns until the table fits
func (tf *tableFormatter) adjustForMaxWidth(widths []int) []int {
	maxWidth := tf.style.MaxWidth
	if maxWidth == 0 {
		maxWidth = tf.terminalWidth
	}
	if maxWidth <= 0 || len(widths) == 0 {
		return widths
	}

	minWidth := tf.style.Padding*2 + 4
	for tf.totalWidth(widths) > maxWidth {
		widest := 0
		for i := range widths {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minWidth {
			break
		}
		widths[widest]--
	}
	return widths
}

func (tf *tableFormatter) totalWidth(widths []int) int {
	total := 0
	for _, w := range widths {
		total += w
	}
	if tf.style.BorderStyle.Vertical != "" {
		total += len(widths) + 1
	}
	return total
}

func (tf *tableFormatter) renderBorder(widths []int, left, cross, right string) string {
	var result strings.Builder
	result.WriteString(left)
	for i, w := range widths {
		result.WriteString(strings.Repeat(tf.style.BorderStyle.Horizontal, w))
		if i < len(widths)-1 {
			result.WriteString(cross)
		}
	}
	result.WriteString(right)
	result.WriteString("\n")
	return result.String()
}

func (tf *tableFormatter) renderRow(row []string, widths []int, isHeader bool) string {
	var result strings.Builder
	v := tf.style.BorderStyle.Vertical
	result.WriteString(v)
	for i, width := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		result.WriteString(tf.formatCell(cell, width, tf.alignments[i], isHeader))
		if v != "" {
			result.WriteString(v)
		} else if i < len(widths)-1 {
			result.WriteString(" ")
		}
	}
	result.WriteString("\n")
	return result.String()
}

// formatCell pads content to width, truncating it when needed. Color is
// applied after padding so escape codes do not count as width.
func (tf *tableFormatter) formatCell(content string, width int, alignment Alignment, isHeader bool) string {
	contentWidth := width - tf.style.Padding*2
	if contentWidth < 0 {
		contentWidth = 0
	}

	if utf8.RuneCountInString(content) > contentWidth {
		runes := []rune(content)
		if contentWidth > 3 {
			content = string(runes[:contentWidth-3]) + "..."
		} else {
			content = string(runes[:contentWidth])
		}
	}

	gap := contentWidth - utf8.RuneCountInString(content)
	if isHeader && tf.colorSystem != nil {
		content = tf.colorSystem.Colorize(content, tf.theme.Primary)
	}

	pad := strings.Repeat(" ", tf.style.Padding)
	if alignment == AlignRight {
		return pad + strings.Repeat(" ", gap) + content + pad
	}
	return pad + content + strings.Repeat(" ", gap) + pad
}

// getTerminalWidth returns the stdout terminal width, 0 when not a terminal
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}
