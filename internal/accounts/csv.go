package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pennywise-dev/pennywise/internal/model"
)

const (
	numFields  = 3
	colName    = 0
	colType    = 1
	colBalance = 2
)

// ReadAccounts reads an account seed file with the header
// name,type,balance. A blank balance means zero.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes accounts in the seed layout, so the output can be
// read back by ReadAccounts.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"name", "type", "balance"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colName] = acct.Name
	row[colType] = string(acct.Type)
	row[colBalance] = acct.Balance.StringFixed(2)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	name := strings.TrimSpace(record[colName])
	if name == "" {
		return model.Account{}, ErrEmptyName
	}
	typ := model.AccountType(strings.ToLower(strings.TrimSpace(record[colType])))
	if !typ.Valid() {
		return model.Account{}, fmt.Errorf("%w: %q", ErrInvalidType, record[colType])
	}

	balance := decimal.Zero
	if raw := strings.TrimSpace(record[colBalance]); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing balance %q: %w", raw, err)
		}
		balance = d
	}

	return model.Account{Name: name, Type: typ, Balance: balance}, nil
}
