// Package ledger implements the mutation rules over a khata snapshot.
//
// Records are never erased by a delete: they move to the parallel deleted
// collection with a deletion stamp and can be restored until purged.
// Deleting a customer cascades to its active transactions; the cascade is
// tagged with a batch id so that restoring the customer brings back exactly
// the transactions it took with it.
//
// A Ledger is not safe for concurrent use. The sync engine serializes access.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mschirtzinger/khata/internal/schema"
)

// DefaultRetentionDays is how long deleted records stay recoverable.
const DefaultRetentionDays = 30

var (
	// ErrCustomerNotFound is returned when no customer has the given id
	// in the collection the operation works on.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrTransactionNotFound is returned when no transaction has the given
	// id in the collection the operation works on.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrNotDeleted is returned by restore and purge operations on
	// records that are still active.
	ErrNotDeleted = errors.New("record is not deleted")

	// ErrCustomerDeleted is returned when an operation needs an active
	// customer but the customer is in the deleted collection.
	ErrCustomerDeleted = errors.New("customer is deleted")
)

// Ledger applies soft-delete mutations to a snapshot in place.
type Ledger struct {
	snap      *schema.Snapshot
	now       func() time.Time
	ids       schema.IDGenerator
	newBatch  func() string
	retention int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides the record id generator.
func WithIDs(ids schema.IDGenerator) Option {
	return func(l *Ledger) { l.ids = ids }
}

// WithBatchIDs overrides the deletion batch id generator.
func WithBatchIDs(next func() string) Option {
	return func(l *Ledger) { l.newBatch = next }
}

// WithRetention sets the recoverability window in days.
func WithRetention(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.retention = days
		}
	}
}

var defaultIDs schema.IDGenerator = mustSnowflake()

func mustSnowflake() schema.IDGenerator {
	gen, err := schema.NewSnowflakeGenerator(0)
	if err != nil {
		panic(err)
	}
	return gen
}

func newBatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// New wraps snap. Mutations modify snap directly.
func New(snap *schema.Snapshot, opts ...Option) *Ledger {
	if snap == nil {
		snap = schema.NewEmptySnapshot(time.Now())
	}
	l := &Ledger{
		snap:      snap,
		now:       time.Now,
		ids:       defaultIDs,
		newBatch:  newBatchID,
		retention: DefaultRetentionDays,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot returns the wrapped snapshot.
func (l *Ledger) Snapshot() *schema.Snapshot {
	return l.snap
}

// Retention returns the recoverability window in days.
func (l *Ledger) Retention() int {
	return l.retention
}

// DaysLeft returns retention - floor((now - deletedAt) / 24h).
// Zero or negative means the record is eligible for purge.
func DaysLeft(deletedAt, now time.Time, retention int) int {
	elapsed := math.Floor(now.Sub(deletedAt).Hours() / 24)
	return retention - int(elapsed)
}

// DaysLeft returns the days until a record deleted at deletedAt may be purged.
func (l *Ledger) DaysLeft(deletedAt time.Time) int {
	return DaysLeft(deletedAt, l.now(), l.retention)
}

// AddCustomer validates in and adds a new active customer.
// New customers are listed first.
func (l *Ledger) AddCustomer(in schema.NewCustomer) (schema.Customer, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return schema.Customer{}, err
	}

	c := schema.Customer{
		ID:            l.ids.NextID(),
		Name:          in.Name,
		NameLocalized: in.NameLocalized,
		Phone:         in.Phone,
		CreatedAt:     l.now().UTC(),
	}
	l.snap.Customers = append([]schema.Customer{c}, l.snap.Customers...)
	return c, nil
}

// UpdateCustomer replaces the editable fields of an active customer.
func (l *Ledger) UpdateCustomer(id int64, in schema.NewCustomer) (schema.Customer, error) {
	idx := indexCustomer(l.snap.Customers, id)
	if idx < 0 {
		return schema.Customer{}, l.missingActiveCustomer(id)
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return schema.Customer{}, err
	}

	c := &l.snap.Customers[idx]
	c.Name = in.Name
	c.NameLocalized = in.NameLocalized
	c.Phone = in.Phone
	return *c, nil
}

// AddTransaction validates in and records it against an active customer.
func (l *Ledger) AddTransaction(in schema.NewTransaction) (schema.Transaction, error) {
	in.Normalize()
	now := l.now()
	if err := in.Validate(schema.DateOf(now)); err != nil {
		return schema.Transaction{}, err
	}
	if indexCustomer(l.snap.Customers, in.CustomerID) < 0 {
		return schema.Transaction{}, l.missingActiveCustomer(in.CustomerID)
	}

	t := schema.Transaction{
		ID:         l.ids.NextID(),
		CustomerID: in.CustomerID,
		Date:       in.Date,
		Item:       in.Item,
		Amount:     in.Amount,
		Type:       in.Type,
		Note:       in.Note,
		CreatedAt:  now.UTC(),
	}
	l.snap.Transactions = append(l.snap.Transactions, t)
	return t, nil
}

// DeleteCustomer moves the customer and all of its active transactions to
// the deleted collections under one deletion batch.
func (l *Ledger) DeleteCustomer(id int64) error {
	idx := indexCustomer(l.snap.Customers, id)
	if idx < 0 {
		return l.missingActiveCustomer(id)
	}

	stamp := l.now().UTC()
	batch := l.newBatch()

	c := l.snap.Customers[idx]
	c.DeletedAt = &stamp
	c.DeletionBatch = batch
	l.snap.Customers = removeCustomer(l.snap.Customers, idx)
	l.snap.DeletedCustomers = append(l.snap.DeletedCustomers, c)

	kept := l.snap.Transactions[:0]
	for _, t := range l.snap.Transactions {
		if t.CustomerID != id {
			kept = append(kept, t)
			continue
		}
		at := stamp
		t.DeletedAt = &at
		t.DeletionCause = schema.CauseCustomer
		t.DeletionBatch = batch
		l.snap.DeletedTransactions = append(l.snap.DeletedTransactions, t)
	}
	l.snap.Transactions = kept
	return nil
}

// RestoreCustomer moves a deleted customer back to active together with
// the transactions removed by the same deletion. Transactions deleted on
// their own stay deleted. Transactions without provenance (written before
// it was recorded) are restored when their customer id matches.
func (l *Ledger) RestoreCustomer(id int64) error {
	idx := indexCustomer(l.snap.DeletedCustomers, id)
	if idx < 0 {
		return l.missingDeletedCustomer(id)
	}

	c := l.snap.DeletedCustomers[idx]
	batch := c.DeletionBatch
	c.DeletedAt = nil
	c.DeletionBatch = ""
	l.snap.DeletedCustomers = removeCustomer(l.snap.DeletedCustomers, idx)
	l.snap.Customers = append(l.snap.Customers, c)

	kept := l.snap.DeletedTransactions[:0]
	for _, t := range l.snap.DeletedTransactions {
		if t.CustomerID != id || !restoredWith(t, batch) {
			kept = append(kept, t)
			continue
		}
		t.DeletedAt = nil
		t.DeletionCause = schema.CauseNone
		t.DeletionBatch = ""
		l.snap.Transactions = append(l.snap.Transactions, t)
	}
	l.snap.DeletedTransactions = kept
	return nil
}

func restoredWith(t schema.Transaction, batch string) bool {
	switch t.DeletionCause {
	case schema.CauseCustomer:
		return t.DeletionBatch == batch
	case schema.CauseNone:
		return true
	default:
		return false
	}
}

// DeleteTransaction moves one active transaction to the deleted collection.
func (l *Ledger) DeleteTransaction(id int64) error {
	idx := indexTransaction(l.snap.Transactions, id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}

	stamp := l.now().UTC()
	t := l.snap.Transactions[idx]
	t.DeletedAt = &stamp
	t.DeletionCause = schema.CauseStandalone
	t.DeletionBatch = ""
	l.snap.Transactions = removeTransaction(l.snap.Transactions, idx)
	l.snap.DeletedTransactions = append(l.snap.DeletedTransactions, t)
	return nil
}

// RestoreTransaction moves one deleted transaction back to active. The
// owning customer must be active.
func (l *Ledger) RestoreTransaction(id int64) error {
	idx := indexTransaction(l.snap.DeletedTransactions, id)
	if idx < 0 {
		if indexTransaction(l.snap.Transactions, id) >= 0 {
			return fmt.Errorf("%w: transaction %d", ErrNotDeleted, id)
		}
		return fmt.Errorf("%w: %d", ErrTransactionNotFound, id)
	}

	t := l.snap.DeletedTransactions[idx]
	if indexCustomer(l.snap.Customers, t.CustomerID) < 0 {
		return l.missingActiveCustomer(t.CustomerID)
	}

	t.DeletedAt = nil
	t.DeletionCause = schema.CauseNone
	t.DeletionBatch = ""
	l.snap.DeletedTransactions = removeTransaction(l.snap.DeletedTransactions, idx)
	l.snap.Transactions = append(l.snap.Transactions, t)
	return nil
}

// DeleteAllCustomers deletes every active customer, each in its own batch
// so they can be restored individually. Returns the number deleted.
func (l *Ledger) DeleteAllCustomers() int {
	ids := make([]int64, len(l.snap.Customers))
	for i, c := range l.snap.Customers {
		ids[i] = c.ID
	}
	for _, id := range ids {
		// ids come from the active collection
		_ = l.DeleteCustomer(id)
	}
	return len(ids)
}

// DeleteAllTransactions deletes every active transaction of an active
// customer as standalone deletions. Returns the number deleted.
func (l *Ledger) DeleteAllTransactions(customerID int64) (int, error) {
	if indexCustomer(l.snap.Customers, customerID) < 0 {
		return 0, l.missingActiveCustomer(customerID)
	}

	stamp := l.now().UTC()
	n := 0
	kept := l.snap.Transactions[:0]
	for _, t := range l.snap.Transactions {
		if t.CustomerID != customerID {
			kept = append(kept, t)
			continue
		}
		at := stamp
		t.DeletedAt = &at
		t.DeletionCause = schema.CauseStandalone
		t.DeletionBatch = ""
		l.snap.DeletedTransactions = append(l.snap.DeletedTransactions, t)
		n++
	}
	l.snap.Transactions = kept
	return n, nil
}

func (l *Ledger) missingActiveCustomer(id int64) error {
	if indexCustomer(l.snap.DeletedCustomers, id) >= 0 {
		return fmt.Errorf("%w: %d", ErrCustomerDeleted, id)
	}
	return fmt.Errorf("%w: %d", ErrCustomerNotFound, id)
}

func (l *Ledger) missingDeletedCustomer(id int64) error {
	if indexCustomer(l.snap.Customers, id) >= 0 {
		return fmt.Errorf("%w: customer %d", ErrNotDeleted, id)
	}
	return fmt.Errorf("%w: %d", ErrCustomerNotFound, id)
}

func indexCustomer(list []schema.Customer, id int64) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexTransaction(list []schema.Transaction, id int64) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func removeCustomer(list []schema.Customer, i int) []schema.Customer {
	return append(list[:i:i], list[i+1:]...)
}

func removeTransaction(list []schema.Transaction, i int) []schema.Transaction {
	return append(list[:i:i], list[i+1:]...)
}
