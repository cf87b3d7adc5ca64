package export

import "fmt"

// Column describes one table column. Width is a relative weight used by the PDF layout.
type Column struct {
	Title string
	Width float64
}

// Dataset is an ordered table ready for rendering.
type Dataset struct {
	Columns []Column
	Rows    [][]string
}

// Titles returns the column headings in order.
func (d Dataset) Titles() []string {
	titles := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		titles[i] = col.Title
	}
	return titles
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset requires at least one column")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}
