package board

// Schema is a read-only view over a board's declared columns.
type Schema struct {
	columns []Column
	byID    map[string]int
}

func NewSchema(columns []Column) *Schema {
	s := &Schema{
		columns: columns,
		byID:    make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		// First declaration wins on duplicate ids.
		if _, ok := s.byID[c.ID]; !ok {
			s.byID[c.ID] = i
		}
	}
	return s
}

// Resolve returns the column with the given id.
func (s *Schema) Resolve(id string) (Column, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// NumericColumns returns the number columns in declared order.
func (s *Schema) NumericColumns() []Column {
	out := []Column{}
	for _, c := range s.columns {
		if c.Type == ColumnNumber {
			out = append(out, c)
		}
	}
	return out
}

// Text reads a cell as text. Missing values read as "".
func (s *Schema) Text(row Row, id string) string {
	return FormatValue(row.Data[id])
}

// Number reads a cell as a number. It fails for missing or non-numeric
// values whatever the column type is.
func (s *Schema) Number(row Row, id string) (float64, bool) {
	return ParseNumber(row.Data[id])
}
