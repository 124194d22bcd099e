package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders aligned columns under a highlighted header.
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers.
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], width(cell))
			}
		}
	}

	head := paint(t.noColor, color.Bold, color.FgCyan)
	gray := paint(t.noColor, color.FgHiBlack)

	cells := make([]string, len(widths))
	for i, h := range t.headers {
		cells[i] = head.Sprint(padRight(h, widths[i]))
	}
	t.line(cells)

	for i, w := range widths {
		cells[i] = gray.Sprint(strings.Repeat("─", w))
	}
	t.line(cells)

	for _, row := range t.rows {
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = padRight(cell, widths[i])
		}
		t.line(cells)
	}
}

func (t *Table) line(cells []string) {
	fmt.Fprintln(t.w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

// KeyValueTable renders "key: value" lines with aligned values.
type KeyValueTable struct {
	w       io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates an empty key-value table.
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{w: w, noColor: noColor}
}

// AddRow appends a pair. Empty values are skipped.
func (t *KeyValueTable) AddRow(key, value string) {
	if value == "" {
		return
	}
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the table.
func (t *KeyValueTable) Render() {
	keyWidth := 0
	for _, k := range t.keys {
		keyWidth = max(keyWidth, width(k)+1)
	}

	cyan := paint(t.noColor, color.FgCyan)
	for i, k := range t.keys {
		fmt.Fprintf(t.w, "%s %s\n", cyan.Sprint(padRight(k+":", keyWidth)), t.values[i])
	}
}

// Section is a titled, indented block of lines. Empty sections render nothing.
type Section struct {
	w       io.Writer
	title   string
	lines   []string
	noColor bool
}

// NewSection creates a section titled title.
func NewSection(w io.Writer, title string, noColor bool) *Section {
	return &Section{w: w, title: title, noColor: noColor}
}

// AddLine appends a line.
func (s *Section) AddLine(format string, args ...any) {
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

// Render writes the section followed by a blank line.
func (s *Section) Render() {
	if len(s.lines) == 0 {
		return
	}
	paint(s.noColor, color.Bold, color.FgCyan).Fprintln(s.w, s.title)
	for _, line := range s.lines {
		fmt.Fprintf(s.w, "  %s\n", line)
	}
	fmt.Fprintln(s.w)
}

// Header writes title underlined by a rule of the same width.
func Header(w io.Writer, title string, noColor bool) {
	paint(noColor, color.Bold, color.FgCyan).Fprintln(w, title)
	paint(noColor, color.FgHiBlack).Fprintln(w, strings.Repeat("─", width(title)))
}

func paint(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}

func width(s string) int { return utf8.RuneCountInString(s) }

func padRight(s string, n int) string {
	if w := width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}
