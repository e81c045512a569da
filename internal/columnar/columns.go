package columnar

import "fmt"

// Column pairs a name with its data vector.
type Column struct {
	Name string
	Data *ColumnData
}

// Header describes one output column of an operator.
type Header struct {
	Name string
	Type Type
}

// Headers is an operator's output schema.
type Headers []Header

// Names returns the column names in order.
func (h Headers) Names() []string {
	names := make([]string, len(h))
	for i, hd := range h {
		names[i] = hd.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (h Headers) Index(name string) int {
	for i, hd := range h {
		if hd.Name == name {
			return i
		}
	}
	return -1
}

// Columns is an ordered list of named, row-aligned column vectors, plus an
// optional parallel vector of row numbers for traceability back to
// storage. Operators take Columns by value and return new Columns; column
// buffers are never shared mutably across operators.
type Columns struct {
	Cols       []Column
	RowNumbers []uint64 // nil when rows do not map to stored rows
}

// Batch is the unit of flow between operators.
type Batch = Columns

// NewColumns builds an empty Columns with the given headers.
func NewColumns(headers Headers) Columns {
	cols := make([]Column, len(headers))
	for i, h := range headers {
		cols[i] = Column{Name: h.Name, Data: NewColumnData(h.Type)}
	}
	return Columns{Cols: cols}
}

// Headers derives the schema of this batch.
func (c *Columns) Headers() Headers {
	h := make(Headers, len(c.Cols))
	for i, col := range c.Cols {
		h[i] = Header{Name: col.Name, Type: col.Data.Type()}
	}
	return h
}

// RowCount returns the number of rows; all columns agree by invariant.
func (c *Columns) RowCount() int {
	if len(c.Cols) == 0 {
		return 0
	}
	return c.Cols[0].Data.Len()
}

// Column returns the named column, or nil.
func (c *Columns) Column(name string) *Column {
	for i := range c.Cols {
		if c.Cols[i].Name == name {
			return &c.Cols[i]
		}
	}
	return nil
}

// AppendRow adds one row of values across all columns. The value count
// must match the column count.
func (c *Columns) AppendRow(values ...Value) error {
	if len(values) != len(c.Cols) {
		return fmt.Errorf("row has %d values, batch has %d columns", len(values), len(c.Cols))
	}
	for i, v := range values {
		if err := c.Cols[i].Data.Append(v); err != nil {
			return fmt.Errorf("column %q: %w", c.Cols[i].Name, err)
		}
	}
	return nil
}

// Row materializes row i as a value slice.
func (c *Columns) Row(i int) []Value {
	row := make([]Value, len(c.Cols))
	for j := range c.Cols {
		row[j] = c.Cols[j].Data.Get(i)
	}
	return row
}

// Gather returns a new batch holding the rows named by indices, keeping
// row numbers aligned when present.
func (c *Columns) Gather(indices []int) Columns {
	out := Columns{Cols: make([]Column, len(c.Cols))}
	for i, col := range c.Cols {
		out.Cols[i] = Column{Name: col.Name, Data: col.Data.Gather(indices)}
	}
	if c.RowNumbers != nil {
		out.RowNumbers = make([]uint64, 0, len(indices))
		for _, i := range indices {
			out.RowNumbers = append(out.RowNumbers, c.RowNumbers[i])
		}
	}
	return out
}

// AppendBatch appends all rows of other; schemas must match by position.
func (c *Columns) AppendBatch(other *Columns) error {
	if len(other.Cols) != len(c.Cols) {
		return fmt.Errorf("batch has %d columns, expected %d", len(other.Cols), len(c.Cols))
	}
	for i := range c.Cols {
		for r := 0; r < other.Cols[i].Data.Len(); r++ {
			if err := c.Cols[i].Data.Append(other.Cols[i].Data.Get(r)); err != nil {
				return err
			}
		}
	}
	if other.RowNumbers != nil {
		c.RowNumbers = append(c.RowNumbers, other.RowNumbers...)
	}
	return nil
}
