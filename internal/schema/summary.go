package schema

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStoreLabel titles the summary when the store has no name.
const DefaultStoreLabel = "KHATA STORE"

// SummaryColumns is the column header row of the daily summary.
var SummaryColumns = []string{"CUSTOMER NAME", "MOBILE NO", "CURRENT BALANCE"}

// SummaryFileName returns the per-day summary name, e.g. KB-09-01-2026.csv.
func SummaryFileName(prefix string, asOf time.Time) string {
	return fmt.Sprintf("%s-%s.csv", prefix, asOf.Format("02-01-2006"))
}

// FormatBalance renders a balance for the summary: negative balances
// clamp to 0, at most 3 decimals, trailing zeros trimmed.
func FormatBalance(b decimal.Decimal) string {
	if b.IsNegative() {
		return "0"
	}
	return b.Round(3).String()
}

// DailySummaryCSV renders one row per active customer with the amount the
// customer currently owes. The first row titles the export with the store
// name and date, followed by a blank row and the column headers.
func DailySummaryCSV(s *Snapshot, storeName string, asOf time.Time) ([]byte, error) {
	label := strings.ToUpper(strings.TrimSpace(storeName))
	if label == "" {
		label = DefaultStoreLabel
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{fmt.Sprintf("%s DAILY LEDGER (%s)", label, asOf.Format("02/01/2006"))},
		{""},
		SummaryColumns,
	}
	for _, c := range s.Customers {
		rows = append(rows, []string{c.Name, c.Phone, FormatBalance(s.Balance(c.ID))})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write summary csv: %w", err)
	}
	return buf.Bytes(), nil
}
