package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
)

// Field is a logical transaction field a user can assign to a column.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldIncome      Field = "income"
	FieldExpense     Field = "expense"
)

// Fields lists every mappable field in display order.
var Fields = []Field{FieldDate, FieldDescription, FieldAmount, FieldIncome, FieldExpense}

// Unmapped marks a field with no column.
const Unmapped = -1

var (
	ErrUnknownField      = errors.New("unknown mapping field")
	ErrDuplicateColumn   = errors.New("column mapped to more than one field")
	ErrIncompleteMapping = errors.New("mapping needs date, description and either amount or income and expense")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// ColumnMapping assigns fields to zero-based column indexes. A missing key or
// a negative index means the field is unmapped.
type ColumnMapping map[Field]int

// UnmarshalJSON reads an object of field name to column index. A null index
// leaves the field unmapped.
func (m *ColumnMapping) UnmarshalJSON(data []byte) error {
	var raw map[Field]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ColumnMapping, len(raw))
	for f, col := range raw {
		if col == nil {
			out[f] = Unmapped
			continue
		}
		out[f] = *col
	}
	*m = out
	return nil
}

// Column returns the column index for f, or Unmapped.
func (m ColumnMapping) Column(f Field) int {
	i, ok := m[f]
	if !ok || i < 0 {
		return Unmapped
	}
	return i
}

// Mapped reports whether f has a column.
func (m ColumnMapping) Mapped(f Field) bool {
	return m.Column(f) != Unmapped
}

// Validate checks field names, column uniqueness and that the minimum set of
// fields is mapped.
func (m ColumnMapping) Validate() error {
	used := make(map[int]Field, len(m))
	for _, f := range m.sortedFields() {
		if !knownField(f) {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		col := m.Column(f)
		if col == Unmapped {
			continue
		}
		if other, ok := used[col]; ok {
			return fmt.Errorf("%w: column %d is both %s and %s", ErrDuplicateColumn, col, other, f)
		}
		used[col] = f
	}

	if !m.Mapped(FieldDate) || !m.Mapped(FieldDescription) {
		return ErrIncompleteMapping
	}
	if !m.Mapped(FieldAmount) && !(m.Mapped(FieldIncome) && m.Mapped(FieldExpense)) {
		return ErrIncompleteMapping
	}
	return nil
}

// Ready reports whether the mapping may be submitted.
func (m ColumnMapping) Ready() bool {
	return m.Validate() == nil
}

// String renders the mapping as "date=0,description=1,amount=2".
func (m ColumnMapping) String() string {
	var parts []string
	for _, f := range m.sortedFields() {
		if m.Mapped(f) {
			parts = append(parts, fmt.Sprintf("%s=%d", f, m[f]))
		}
	}
	return strings.Join(parts, ",")
}

func (m ColumnMapping) sortedFields() []Field {
	fields := make([]Field, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

func knownField(f Field) bool {
	for _, k := range Fields {
		if f == k {
			return true
		}
	}
	return false
}

// ParseColumnMapping parses "date=0,description=1,amount=2".
func ParseColumnMapping(s string) (ColumnMapping, error) {
	m := make(ColumnMapping)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, idx, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("mapping entry %q: expected field=column", pair)
		}
		col, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: %w", pair, err)
		}
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		if !knownField(f) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		m[f] = col
	}
	return m, nil
}

// PreviewColumn is one raw value of the first row, shown so the user can
// pick a mapping.
type PreviewColumn struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

// Preview returns the first row of r without assuming it is a header.
func Preview(r io.Reader) ([]PreviewColumn, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	cols := make([]PreviewColumn, len(rows[0].Values))
	for i, v := range rows[0].Values {
		cols[i] = PreviewColumn{Index: i, Value: strings.TrimSpace(v)}
	}
	return cols, nil
}

// RowParseAnomaly reports a value the mapped parser could not read. When
// Skipped is false the row was still emitted with a zero amount.
type RowParseAnomaly struct {
	Line    int    `json:"line"`
	Field   Field  `json:"field"`
	Value   string `json:"value"`
	Skipped bool   `json:"skipped"`
	Err     error  `json:"-"`
}

func (a RowParseAnomaly) Error() string {
	action := "using 0"
	if a.Skipped {
		action = "row skipped"
	}
	return fmt.Sprintf("line %d: %s %q: %v (%s)", a.Line, a.Field, a.Value, a.Err, action)
}

func (a RowParseAnomaly) Unwrap() error { return a.Err }

// MappedParser reads exports using a user-supplied ColumnMapping.
type MappedParser struct {
	Mapping    ColumnMapping
	SkipHeader bool
	Category   string // defaults to model.DefaultCategory
}

// Format returns the parser name.
func (p *MappedParser) Format() string { return "mapped" }

// Parse emits one candidate per row. Unreadable amounts become zero and are
// recorded in Anomalies; unreadable dates skip the row and are recorded too.
func (p *MappedParser) Parse(r io.Reader) (*Result, error) {
	if err := p.Mapping.Validate(); err != nil {
		return nil, err
	}
	rows, err := ReadRows(r)
	if err != nil {
		return nil, fmt.Errorf("reading mapped CSV: %w", err)
	}
	if p.SkipHeader && len(rows) > 0 {
		rows = rows[1:]
	}

	res := &Result{Format: p.Format()}
	for _, row := range rows {
		rawDate := row.cell(p.Mapping.Column(FieldDate))
		date, ok := ParseDate(rawDate)
		if !ok {
			res.Anomalies = append(res.Anomalies, RowParseAnomaly{
				Line: row.Line, Field: FieldDate, Value: rawDate, Skipped: true, Err: ErrInvalidDate,
			})
			continue
		}

		amount, anomalies := p.resolveAmount(row)
		res.Anomalies = append(res.Anomalies, anomalies...)

		desc := row.cell(p.Mapping.Column(FieldDescription))
		res.Candidates = append(res.Candidates, model.NewCandidate(date, desc, amount, p.Category))
	}
	return res, nil
}

func (p *MappedParser) resolveAmount(row Row) (decimal.Decimal, []RowParseAnomaly) {
	if p.Mapping.Mapped(FieldAmount) {
		raw := row.cell(p.Mapping.Column(FieldAmount))
		if d, ok := ParseNumber(raw); ok {
			return d, nil
		}
		return decimal.Zero, []RowParseAnomaly{{Line: row.Line, Field: FieldAmount, Value: raw, Err: ErrInvalidAmount}}
	}

	var anomalies []RowParseAnomaly
	side := func(f Field) decimal.Decimal {
		if !p.Mapping.Mapped(f) {
			return decimal.Zero
		}
		raw := row.cell(p.Mapping.Column(f))
		if raw == "" {
			return decimal.Zero
		}
		d, ok := ParseNumber(raw)
		if !ok {
			anomalies = append(anomalies, RowParseAnomaly{Line: row.Line, Field: f, Value: raw, Err: ErrInvalidAmount})
			return decimal.Zero
		}
		return d
	}
	income := side(FieldIncome)
	expense := side(FieldExpense)
	return income.Sub(expense), anomalies
}
