package cli

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[@-~]`)

// table renders aligned plain-text columns. Widths are measured in terminal
// cells so handles and previews with wide runes still line up.
type table struct {
	headers []string
	rows    [][]string
	limits  map[int]int
}

func newTable(headers ...string) *table {
	return &table{headers: headers, limits: map[int]int{}}
}

// limit truncates column col to width cells. Zero removes the limit.
func (t *table) limit(col, width int) *table {
	if width <= 0 {
		delete(t.limits, col)
	} else {
		t.limits[col] = width
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) columns() int {
	n := len(t.headers)
	for _, row := range t.rows {
		n = max(n, len(row))
	}
	return n
}

func (t *table) cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return truncateCell(row[col], t.limits[col])
}

func (t *table) write(out io.Writer) error {
	cols := t.columns()
	if cols == 0 {
		return nil
	}

	widths := make([]int, cols)
	measure := func(row []string) {
		for col := range cols {
			widths[col] = max(widths[col], cellWidth(t.cell(row, col)))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}

	w := bufio.NewWriter(out)
	line := func(row []string) {
		var b strings.Builder
		for col := range cols {
			value := t.cell(row, col)
			b.WriteString(value)
			if col < cols-1 {
				b.WriteString(strings.Repeat(" ", widths[col]-cellWidth(value)))
				b.WriteString(columnGap)
			}
		}
		b.WriteByte('\n')
		_, _ = w.WriteString(b.String())
	}

	if len(t.headers) > 0 {
		line(t.headers)
	}
	for _, row := range t.rows {
		line(row)
	}
	return w.Flush()
}

func cellWidth(value string) int {
	return runewidth.StringWidth(ansiSequence.ReplaceAllString(value, ""))
}

// truncateCell shortens value to at most width display cells.
func truncateCell(value string, width int) string {
	if width <= 0 || cellWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "…")
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
