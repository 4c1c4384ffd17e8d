package ingestlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pennywise-dev/pennywise/internal/ingest"
)

// Entry is one row in the import log. It never carries decrypted
// transaction text.
type Entry struct {
	Timestamp     time.Time
	BatchID       string
	File          string
	Row           int
	Outcome       string
	TransactionID string
	Balance       string
	Error         string
}

// Header is the CSV header for import-log.csv.
const Header = "timestamp,batch_id,file,row,outcome,transaction_id,balance,error"

const (
	numFields        = 8
	logDir           = "logs"
	logFile          = "logs/import-log.csv"
	colTimestamp     = 0
	colBatchID       = 1
	colFile          = 2
	colRow           = 3
	colOutcome       = 4
	colTransactionID = 5
	colBalance       = 6
	colError         = 7
)

// FromReport turns every row result of rep into an Entry.
func FromReport(rep *ingest.Report, file string, ts time.Time) []Entry {
	entries := make([]Entry, 0, len(rep.Rows))
	for _, rr := range rep.Rows {
		e := Entry{
			Timestamp: ts,
			BatchID:   rep.BatchID.String(),
			File:      file,
			Row:       rr.Row,
			Outcome:   string(rr.Outcome),
			Balance:   string(rr.Balance),
		}
		if rr.TransactionID != uuid.Nil {
			e.TransactionID = rr.TransactionID.String()
		}
		if rr.Err != nil {
			e.Error = rr.Err.Error()
		}
		entries = append(entries, e)
	}
	return entries
}

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colBatchID] = e.BatchID
	row[colFile] = e.File
	row[colRow] = strconv.Itoa(e.Row)
	row[colOutcome] = e.Outcome
	row[colTransactionID] = e.TransactionID
	row[colBalance] = e.Balance
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	row, err := strconv.Atoi(record[colRow])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing row %q: %w", record[colRow], err)
	}

	return Entry{
		Timestamp:     ts,
		BatchID:       record[colBatchID],
		File:          record[colFile],
		Row:           row,
		Outcome:       record[colOutcome],
		TransactionID: record[colTransactionID],
		Balance:       record[colBalance],
		Error:         record[colError],
	}, nil
}

// Append writes entries to <root>/logs/import-log.csv, creating the file and header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <root>/logs/import-log.csv.
// Returns an empty slice if the file does not exist.
func Read(root string) ([]Entry, error) {
	path := filepath.Join(root, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening import log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading import log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
