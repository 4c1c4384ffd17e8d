package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
)

// HeuristicParser reads exports whose column layout is unknown but which
// carry a running balance next to each movement. The header row is consumed
// and ignored; columns are classified by value.
type HeuristicParser struct {
	Category string // defaults to model.DefaultCategory
}

// Format returns the parser name.
func (p *HeuristicParser) Format() string { return "heuristic" }

// Parse reads r and normalizes every row it can. Rows without a date, a
// description or any non-zero figure are counted in Dropped and nothing else.
func (p *HeuristicParser) Parse(r io.Reader) (*Result, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, fmt.Errorf("reading heuristic CSV: %w", err)
	}

	res := &Result{Format: p.Format()}
	if len(rows) <= 1 {
		return res, nil
	}

	for _, row := range rows[1:] {
		txn, ok := NormalizeRow(row.Values)
		if !ok {
			res.Dropped++
			continue
		}
		if p.Category != "" {
			txn.Category = p.Category
		}
		res.Candidates = append(res.Candidates, txn)
	}
	return res, nil
}

// NormalizeRow applies the balance heuristic to a single row:
//
//   - blank cells count as the number zero, so an empty credit or debit
//     column keeps its position in the pair
//   - the numeric value with the largest magnitude is the running balance
//   - of the rest, two values are a (credit, debit) pair giving debit-credit,
//     one value is the amount itself, none means zero
//   - the first text value that parses as a date is the date, the first other
//     text value is the description
//
// ok is false when the row lacks a date or description, or when both amount
// and balance are zero.
func NormalizeRow(values []string) (txn model.Transaction, ok bool) {
	var numbers []decimal.Decimal
	var texts []string
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			numbers = append(numbers, decimal.Zero)
			continue
		}
		if d, isNum := ParseNumber(v); isNum {
			numbers = append(numbers, d)
			continue
		}
		texts = append(texts, v)
	}

	balance := decimal.Zero
	rest := numbers
	if len(numbers) > 0 {
		maxIdx := 0
		for i, n := range numbers {
			if n.Abs().GreaterThan(numbers[maxIdx].Abs()) {
				maxIdx = i
			}
		}
		balance = numbers[maxIdx]
		rest = make([]decimal.Decimal, 0, len(numbers)-1)
		rest = append(rest, numbers[:maxIdx]...)
		rest = append(rest, numbers[maxIdx+1:]...)
	}

	amount := decimal.Zero
	switch {
	case len(rest) >= 2:
		credit, debit := rest[0], rest[1]
		amount = debit.Sub(credit)
	case len(rest) == 1:
		amount = rest[0]
	}

	var dateText, description string
	for _, v := range texts {
		if _, isDate := ParseDate(v); isDate {
			dateText = v
			break
		}
	}
	for _, v := range texts {
		if v != dateText {
			description = v
			break
		}
	}

	if dateText == "" || description == "" {
		return model.Transaction{}, false
	}
	if amount.IsZero() && balance.IsZero() {
		return model.Transaction{}, false
	}

	date, _ := ParseDate(dateText)
	return model.NewCandidate(date, description, amount, ""), true
}
