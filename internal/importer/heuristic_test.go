package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-dev/pennywise/internal/model"
)

func TestNormalizeRow(t *testing.T) {
	tests := []struct {
		name       string
		row        []string
		wantOK     bool
		wantDate   string
		wantDesc   string
		wantAmount string
	}{
		{
			name:       "single leftover value after balance",
			row:        []string{"2024-01-05", "Coffee Shop", "12.50", "987.65"},
			wantOK:     true,
			wantDate:   "2024-01-05",
			wantDesc:   "Coffee Shop",
			wantAmount: "12.5",
		},
		{
			name:       "credit debit pair",
			row:        []string{"2024-01-05", "Coffee Shop", "0", "12.50", "1000.00"},
			wantOK:     true,
			wantDate:   "2024-01-05",
			wantDesc:   "Coffee Shop",
			wantAmount: "12.5",
		},
		{
			name:       "credit side gives negative",
			row:        []string{"2024-01-06", "Salary", "2500.00", "0", "3512.50"},
			wantOK:     true,
			wantDate:   "2024-01-06",
			wantDesc:   "Salary",
			wantAmount: "-2500",
		},
		{
			name:       "balance is largest magnitude even when negative",
			row:        []string{"2024-02-01", "Card payment", "-40", "-1500"},
			wantOK:     true,
			wantDate:   "2024-02-01",
			wantDesc:   "Card payment",
			wantAmount: "-40",
		},
		{
			name:       "only balance present",
			row:        []string{"2024-02-02", "Opening", "250.00"},
			wantOK:     true,
			wantDate:   "2024-02-02",
			wantDesc:   "Opening",
			wantAmount: "0",
		},
		{
			name:       "date not first column",
			row:        []string{"POS", "01/15/2024", "9.99", "100"},
			wantOK:     true,
			wantDate:   "2024-01-15",
			wantDesc:   "POS",
			wantAmount: "9.99",
		},
		{
			name:       "more than two leftovers uses first pair",
			row:        []string{"2024-03-01", "Split", "1", "4", "2", "900"},
			wantOK:     true,
			wantDate:   "2024-03-01",
			wantDesc:   "Split",
			wantAmount: "3",
		},
		{
			name:       "blank cells count as zero",
			row:        []string{"2024-01-07", "Bookshop", "", "19.99", "3492.51", ""},
			wantOK:     true,
			wantDate:   "2024-01-07",
			wantDesc:   "Bookshop",
			wantAmount: "19.99",
		},
		{
			name:       "blank debit keeps credit sign",
			row:        []string{"2024-01-06", "Salary", "2500.00", "", "3512.50"},
			wantOK:     true,
			wantDate:   "2024-01-06",
			wantDesc:   "Salary",
			wantAmount: "-2500",
		},
		{
			name:       "blank credit",
			row:        []string{"2024-01-05", "Coffee Shop", " ", "12.50", "1000.00"},
			wantOK:     true,
			wantDate:   "2024-01-05",
			wantDesc:   "Coffee Shop",
			wantAmount: "12.5",
		},
		{name: "missing date and description", row: []string{"12.50", "1000.00"}, wantOK: false},
		{name: "missing date", row: []string{"Coffee Shop", "12.50", "1000.00"}, wantOK: false},
		{name: "missing description", row: []string{"2024-01-05", "12.50", "1000.00"}, wantOK: false},
		{name: "all zero", row: []string{"2024-01-05", "Nothing", "0", "0", "0"}, wantOK: false},
		{name: "no numbers", row: []string{"2024-01-05", "Nothing"}, wantOK: false},
		{name: "empty row", row: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, ok := NormalizeRow(tt.row)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantDate, txn.DateString())
			assert.Equal(t, tt.wantDesc, txn.Description)
			assert.Equal(t, tt.wantAmount, txn.Amount.String())
			assert.Equal(t, model.TypeFor(txn.Amount), txn.Type)
			assert.Equal(t, model.DefaultCategory, txn.Category)
		})
	}
}

func TestNormalizeRow_BlankMatchesZero(t *testing.T) {
	withZero, ok := NormalizeRow([]string{"2024-01-06", "Salary", "2500.00", "0", "3512.50"})
	require.True(t, ok)
	withBlank, ok := NormalizeRow([]string{"2024-01-06", "Salary", "2500.00", "", "3512.50"})
	require.True(t, ok)

	assert.True(t, withZero.Amount.Equal(withBlank.Amount), "%s != %s", withZero.Amount, withBlank.Amount)
	assert.Equal(t, model.TypeExpense, withBlank.Type)
}

func TestHeuristicParser_File(t *testing.T) {
	p := &HeuristicParser{}
	res, err := p.Parse(openTestdata(t, "heuristic_statement.csv"))
	require.NoError(t, err)

	assert.Equal(t, "heuristic", res.Format)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, 3, res.Dropped)
	assert.Empty(t, res.Anomalies)

	assert.Equal(t, "Coffee Shop", res.Candidates[0].Description)
	assert.Equal(t, "12.5", res.Candidates[0].Amount.String())
	assert.Equal(t, model.TypeIncome, res.Candidates[0].Type)

	assert.Equal(t, "Salary", res.Candidates[1].Description)
	assert.Equal(t, "-2500", res.Candidates[1].Amount.String())
	assert.Equal(t, model.TypeExpense, res.Candidates[1].Type)

	assert.Equal(t, "Bookshop", res.Candidates[2].Description)
}

func TestHeuristicParser_HeaderOnly(t *testing.T) {
	p := &HeuristicParser{}
	res, err := p.Parse(strings.NewReader("Date,Description,Amount,Balance\n"))
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, res.Dropped)
}

func TestHeuristicParser_CategoryOverride(t *testing.T) {
	p := &HeuristicParser{Category: "Imported"}
	res, err := p.Parse(strings.NewReader("h1,h2,h3,h4\n2024-01-05,Coffee Shop,12.50,987.65\n"))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Imported", res.Candidates[0].Category)
}
