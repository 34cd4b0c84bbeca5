package display

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Align selects how a cell is padded inside its column.
type Align int

// Cell alignments
const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Column describes one column of a Box table.
type Column struct {
	Title string
	Width int
	Align Align
}

// Box renders the fixed-width box-drawing tables used by the layout views.
// Every line is prefixed with the box indentation.
type Box struct {
	sb      strings.Builder
	indent  string
	columns []Column
	width   int
}

// NewBox starts a table indented by indent spaces. The inner width is the sum
// of the column widths plus one separator between adjacent columns.
func NewBox(indent int, columns ...Column) *Box {
	if indent < 0 {
		indent = 0
	}
	b := &Box{indent: strings.Repeat(" ", indent), columns: columns}
	for i, c := range columns {
		b.width += c.Width
		if i > 0 {
			b.width++
		}
	}
	return b
}

// Width returns the inner width of the box.
func (b *Box) Width() int { return b.width }

// Title writes the top border with the title centred inside it.
func (b *Box) Title(title string) {
	b.line("┌", Pad(title, b.width, AlignCenter, '─'), "┐")
}

// KeyValue writes a full-width line with key on the left and value on the right.
func (b *Box) KeyValue(key, value string) {
	keyWidth := b.width - utf8.RuneCountInString(value)
	if keyWidth < 0 {
		keyWidth = 0
	}
	b.line("├", Pad(key, keyWidth, AlignLeft, ' ')+value, "┤")
}

// Rule writes a full-width horizontal separator.
func (b *Box) Rule() {
	b.line("├", strings.Repeat("─", b.width), "┤")
}

// Header writes the centred column titles followed by the column separator.
func (b *Box) Header() {
	cells := make([]string, len(b.columns))
	for i, c := range b.columns {
		cells[i] = Pad(c.Title, c.Width, AlignCenter, ' ')
	}
	b.line("├", strings.Join(cells, "┬"), "┤")
	b.border("├", "┼", "┤")
}

// Row writes one table row. Missing cells render empty; extra cells are ignored.
func (b *Box) Row(cells ...string) {
	out := make([]string, len(b.columns))
	for i, c := range b.columns {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		out[i] = Pad(v, c.Width, c.Align, ' ')
	}
	b.line("│", strings.Join(out, "│"), "│")
}

// Close writes the bottom border.
func (b *Box) Close() {
	b.border("└", "┴", "┘")
}

// String returns everything written so far.
func (b *Box) String() string { return b.sb.String() }

func (b *Box) border(left, join, right string) {
	parts := make([]string, len(b.columns))
	for i, c := range b.columns {
		parts[i] = strings.Repeat("─", c.Width)
	}
	b.line(left, strings.Join(parts, join), right)
}

func (b *Box) line(left, body, right string) {
	b.sb.WriteString(b.indent)
	b.sb.WriteString(left)
	b.sb.WriteString(body)
	b.sb.WriteString(right)
	b.sb.WriteByte('\n')
}

// Pad pads s with fill up to width runes. Centred text puts the odd rune of
// padding on the right. Text longer than width is returned unchanged.
func Pad(s string, width int, align Align, fill rune) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	gap := width - n
	f := string(fill)
	switch align {
	case AlignRight:
		return strings.Repeat(f, gap) + s
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(f, left) + s + strings.Repeat(f, gap-left)
	default:
		return s + strings.Repeat(f, gap)
	}
}

// HumanBytes formats n with binary units.
func HumanBytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
