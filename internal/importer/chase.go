package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
)

// ChaseParser parses Chase checking CSV exports. Unlike the heuristic parser
// it knows the layout and fails the whole file on a bad row.
type ChaseParser struct {
	Category string
}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColType    = 4
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV and returns candidates.
func (p *ChaseParser) Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", malformed(err))
	}

	res := &Result{Format: p.Format()}
	if len(records) <= 1 {
		return res, nil
	}

	for i, rec := range records[1:] {
		txn, err := p.parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedCSV, i+2, err)
		}
		res.Candidates = append(res.Candidates, txn)
	}
	return res, nil
}

func (p *ChaseParser) parseRow(rec []string) (model.Transaction, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	txn := model.NewCandidate(date, strings.TrimSpace(rec[chaseColDesc]), amount, p.Category)
	// The bank's own type code (ACH_DEBIT, DEBIT_CARD...) is kept as a note.
	txn.Notes = strings.TrimSpace(rec[chaseColType])
	return txn, nil
}
