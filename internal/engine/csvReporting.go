package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"factorlab/internal/calendar"
)

// WriteAuditFiles writes the ledger and security audit trails into dir and returns
// the paths written.
func (e *Engine) WriteAuditFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	ledgerPath := filepath.Join(dir, "ledger-"+e.runID+".csv")
	if err := writeCSVFile(ledgerPath, e.portfolio, writeLedgerCSV); err != nil {
		return nil, err
	}
	securitiesPath := filepath.Join(dir, "securities-"+e.runID+".csv")
	if err := writeCSVFile(securitiesPath, e.portfolio, writeSecuritiesCSV); err != nil {
		return nil, err
	}
	return []string{ledgerPath, securitiesPath}, nil
}

func writeCSVFile(path string, p *Portfolio, write func(io.Writer, *Portfolio) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return write(f, p)
}

// writeLedgerCSV writes one row per calendar index with cash, total value and turnover.
func writeLedgerCSV(w io.Writer, p *Portfolio) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"index", "date", "cash", "total_value", "turnover"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range p.Records() {
		record := []string{
			strconv.Itoa(rec.Index),
			rec.Date.Format(calendar.DateFormat),
			rec.Cash.StringFixed(2),
			rec.TotalValue.StringFixed(2),
			rec.Turnover.StringFixed(6),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// writeSecuritiesCSV writes the value and weight of every referenced security for
// every index where it is held.
func writeSecuritiesCSV(w io.Writer, p *Portfolio) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"index", "date", "security", "kind", "sector", "value", "weight"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, s := range p.Securities() {
		for _, rec := range p.SecurityRecords(s) {
			if rec.Value.IsZero() {
				continue
			}
			record := []string{
				strconv.Itoa(rec.Index),
				rec.Date.Format(calendar.DateFormat),
				s.ID.Symbol,
				string(s.ID.Kind),
				s.Sector,
				rec.Value.StringFixed(2),
				rec.Weight.StringFixed(6),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
