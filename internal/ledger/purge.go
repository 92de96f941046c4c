package ledger

import (
	"fmt"
	"time"
)

// Purge permanently removes a deleted customer and every deleted
// transaction that belongs to it. Returns the number of transactions
// removed. There is no way back.
func (l *Ledger) Purge(customerID int64) (int, error) {
	idx := indexCustomer(l.snap.DeletedCustomers, customerID)
	if idx < 0 {
		return 0, l.missingDeletedCustomer(customerID)
	}
	l.snap.DeletedCustomers = removeCustomer(l.snap.DeletedCustomers, idx)

	n := 0
	kept := l.snap.DeletedTransactions[:0]
	for _, t := range l.snap.DeletedTransactions {
		if t.CustomerID == customerID {
			n++
			continue
		}
		kept = append(kept, t)
	}
	l.snap.DeletedTransactions = kept
	return n, nil
}

// PurgeTransaction permanently removes one deleted transaction.
func (l *Ledger) PurgeTransaction(id int64) error {
	idx := indexTransaction(l.snap.DeletedTransactions, id)
	if idx < 0 {
		if indexTransaction(l.snap.Transactions, id) >= 0 {
			return fmt.Errorf("%w: transaction %d", ErrNotDeleted, id)
		}
		return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}
	l.snap.DeletedTransactions = removeTransaction(l.snap.DeletedTransactions, idx)
	return nil
}

// PurgeResult counts records removed by a bulk purge.
type PurgeResult struct {
	Customers    int
	Transactions int
}

// Empty reports whether nothing was removed.
func (r PurgeResult) Empty() bool {
	return r.Customers == 0 && r.Transactions == 0
}

// PurgeExpired removes every deleted record whose retention window has
// run out at now. An expired customer takes its deleted transactions with
// it regardless of their own age.
func (l *Ledger) PurgeExpired(now time.Time) PurgeResult {
	var res PurgeResult

	expired := make(map[int64]bool)
	keptCustomers := l.snap.DeletedCustomers[:0]
	for _, c := range l.snap.DeletedCustomers {
		if c.DeletedAt != nil && DaysLeft(*c.DeletedAt, now, l.retention) <= 0 {
			expired[c.ID] = true
			res.Customers++
			continue
		}
		keptCustomers = append(keptCustomers, c)
	}
	l.snap.DeletedCustomers = keptCustomers

	keptTxns := l.snap.DeletedTransactions[:0]
	for _, t := range l.snap.DeletedTransactions {
		if expired[t.CustomerID] || (t.DeletedAt != nil && DaysLeft(*t.DeletedAt, now, l.retention) <= 0) {
			res.Transactions++
			continue
		}
		keptTxns = append(keptTxns, t)
	}
	l.snap.DeletedTransactions = keptTxns
	return res
}

// EmptyTrash permanently removes every deleted record.
func (l *Ledger) EmptyTrash() PurgeResult {
	res := PurgeResult{
		Customers:    len(l.snap.DeletedCustomers),
		Transactions: len(l.snap.DeletedTransactions),
	}
	l.snap.DeletedCustomers = l.snap.DeletedCustomers[:0]
	l.snap.DeletedTransactions = l.snap.DeletedTransactions[:0]
	return res
}
