package export

import "fmt"

// Column describes one exported field. Width is a relative weight used by
// the PDF layout; zero means 1.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Dataset defines tabular export content.
type Dataset struct {
	Title    string
	Subtitle []string
	Columns  []Column
	Rows     []map[string]string
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset requires at least one column")
	}
	for i, col := range d.Columns {
		if col.Key == "" {
			return fmt.Errorf("dataset column %d has no key", i)
		}
	}
	return nil
}

func (c Column) heading() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Key
}
