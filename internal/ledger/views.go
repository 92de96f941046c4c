package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/mschirtzinger/khata/internal/schema"
	"github.com/shopspring/decimal"
)

// DefaultInactiveWindow is how long without a transaction before a
// customer is reported inactive.
const DefaultInactiveWindow = 14 * 24 * time.Hour

// Balance returns the customer's balance over active transactions.
// Positive is owed to the store, negative is customer credit.
func (l *Ledger) Balance(customerID int64) decimal.Decimal {
	return l.snap.Balance(customerID)
}

// Customer returns an active customer.
func (l *Ledger) Customer(id int64) (schema.Customer, bool) {
	idx := indexCustomer(l.snap.Customers, id)
	if idx < 0 {
		return schema.Customer{}, false
	}
	return l.snap.Customers[idx], true
}

// TransactionsFor returns the customer's active transactions ordered by
// date, then by creation.
func (l *Ledger) TransactionsFor(customerID int64) []schema.Transaction {
	var out []schema.Transaction
	for _, t := range l.snap.Transactions {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Search returns active customers whose name, localized name or phone
// contains query, case-insensitively. An empty query matches everyone.
func (l *Ledger) Search(query string) []schema.Customer {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []schema.Customer
	for _, c := range l.snap.Customers {
		if q == "" ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.NameLocalized), q) ||
			strings.Contains(c.Phone, q) {
			out = append(out, c)
		}
	}
	return out
}

// Analytics summarizes the active ledger.
type Analytics struct {
	TotalCustomers        int
	TotalTransactions     int
	ThisMonthTransactions int
	CustomersWithDue      int
	CustomersWithAdvance  int

	// TotalDue sums positive balances only.
	TotalDue decimal.Decimal
	// TotalPaid sums every paid entry.
	TotalPaid decimal.Decimal
	// TotalAdvance sums the magnitude of negative balances.
	TotalAdvance decimal.Decimal
}

// Analytics computes the dashboard totals as of now.
func (l *Ledger) Analytics(now time.Time) Analytics {
	a := Analytics{
		TotalCustomers:    len(l.snap.Customers),
		TotalTransactions: len(l.snap.Transactions),
		TotalDue:          decimal.Zero,
		TotalPaid:         decimal.Zero,
		TotalAdvance:      decimal.Zero,
	}

	balances := make(map[int64]decimal.Decimal, len(l.snap.Customers))
	year, month, _ := now.Date()
	for _, t := range l.snap.Transactions {
		balances[t.CustomerID] = balances[t.CustomerID].Add(t.Signed())
		if t.Type == schema.EntryPaid {
			a.TotalPaid = a.TotalPaid.Add(t.Amount)
		}
		if t.Date.Year() == year && t.Date.Month() == month {
			a.ThisMonthTransactions++
		}
	}

	for _, c := range l.snap.Customers {
		b := balances[c.ID]
		switch {
		case b.IsPositive():
			a.CustomersWithDue++
			a.TotalDue = a.TotalDue.Add(b)
		case b.IsNegative():
			a.CustomersWithAdvance++
			a.TotalAdvance = a.TotalAdvance.Add(b.Neg())
		}
	}
	return a
}

// Inactive returns active customers with no transaction dated within
// window before now. Customers with no transactions at all are inactive.
func (l *Ledger) Inactive(now time.Time, window time.Duration) []schema.Customer {
	latest := make(map[int64]time.Time)
	for _, t := range l.snap.Transactions {
		if t.Date.After(schema.Date{Time: latest[t.CustomerID]}) {
			latest[t.CustomerID] = t.Date.Time
		}
	}

	var out []schema.Customer
	for _, c := range l.snap.Customers {
		last, ok := latest[c.ID]
		if !ok || now.Sub(last) >= window {
			out = append(out, c)
		}
	}
	return out
}

// DeletedCustomer pairs a deleted customer with its recovery countdown.
type DeletedCustomer struct {
	schema.Customer
	DaysLeft     int
	Transactions int
}

// DeletedTransaction pairs a deleted transaction with its recovery countdown.
type DeletedTransaction struct {
	schema.Transaction
	DaysLeft int
}

// Trash lists the deleted collections with their days left.
func (l *Ledger) Trash() ([]DeletedCustomer, []DeletedTransaction) {
	now := l.now()

	perCustomer := make(map[int64]int)
	txns := make([]DeletedTransaction, 0, len(l.snap.DeletedTransactions))
	for _, t := range l.snap.DeletedTransactions {
		perCustomer[t.CustomerID]++
		dt := DeletedTransaction{Transaction: t, DaysLeft: l.retention}
		if t.DeletedAt != nil {
			dt.DaysLeft = DaysLeft(*t.DeletedAt, now, l.retention)
		}
		txns = append(txns, dt)
	}

	customers := make([]DeletedCustomer, 0, len(l.snap.DeletedCustomers))
	for _, c := range l.snap.DeletedCustomers {
		dc := DeletedCustomer{Customer: c, DaysLeft: l.retention, Transactions: perCustomer[c.ID]}
		if c.DeletedAt != nil {
			dc.DaysLeft = DaysLeft(*c.DeletedAt, now, l.retention)
		}
		customers = append(customers, dc)
	}
	return customers, txns
}
