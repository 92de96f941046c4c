package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are JSON numbers in the stored document.
	decimal.MarshalJSONWithoutQuotes = true
}

// EntryType is the direction of a transaction.
type EntryType string

const (
	// EntryDue is credit extended to the customer (increases balance).
	EntryDue EntryType = "due"
	// EntryPaid is money received from the customer (decreases balance).
	EntryPaid EntryType = "paid"
)

// DeletionCause records why a transaction sits in the deleted collection.
type DeletionCause string

const (
	// CauseNone marks records written before deletion provenance existed.
	CauseNone DeletionCause = ""
	// CauseStandalone is a transaction deleted on its own.
	CauseStandalone DeletionCause = "standalone"
	// CauseCustomer is a transaction deleted because its customer was.
	CauseCustomer DeletionCause = "customer"
)

// Customer is a ledger account holder.
type Customer struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	NameLocalized string     `json:"nameLocalized,omitempty"`
	Phone         string     `json:"phone"`
	CreatedAt     time.Time  `json:"createdAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	DeletionBatch string     `json:"deletionBatch,omitempty"`
}

// UnmarshalJSON accepts the legacy "nameHindi" key for NameLocalized.
func (c *Customer) UnmarshalJSON(data []byte) error {
	type plain Customer
	var aux struct {
		plain
		NameHindi string `json:"nameHindi"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Customer(aux.plain)
	if c.NameLocalized == "" {
		c.NameLocalized = aux.NameHindi
	}
	return nil
}

// IsDeleted reports whether the customer carries a deletion stamp.
func (c *Customer) IsDeleted() bool {
	return c.DeletedAt != nil
}

// Transaction is a single due or paid entry against a customer.
type Transaction struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customerId"`
	Date          Date            `json:"date"`
	Item          string          `json:"item"`
	Amount        decimal.Decimal `json:"amount"`
	Type          EntryType       `json:"type"`
	Note          string          `json:"note"`
	CreatedAt     time.Time       `json:"createdAt"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
	DeletionCause DeletionCause   `json:"deletionCause,omitempty"`
	DeletionBatch string          `json:"deletionBatch,omitempty"`
}

// Signed returns the amount as it contributes to the customer's balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == EntryPaid {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Date is a calendar date without a time of day.
// It is stored as midnight UTC and encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate returns the calendar date y-m-d.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses YYYY-MM-DD, or a full RFC 3339 timestamp whose date
// component is taken as written.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// After reports whether d is a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Snapshot is the complete ledger state of one store.
type Snapshot struct {
	Customers           []Customer    `json:"customers"`
	Transactions        []Transaction `json:"transactions"`
	DeletedCustomers    []Customer    `json:"deletedCustomers"`
	DeletedTransactions []Transaction `json:"deletedTransactions"`
	LastUpdated         time.Time     `json:"lastUpdated"`
	StoreName           *string       `json:"storeName,omitempty"`
}

// NewEmptySnapshot returns a snapshot with empty collections.
func NewEmptySnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		Customers:           []Customer{},
		Transactions:        []Transaction{},
		DeletedCustomers:    []Customer{},
		DeletedTransactions: []Transaction{},
		LastUpdated:         now.UTC(),
	}
}

// Name returns the store name, or "" when unset.
func (s *Snapshot) Name() string {
	if s.StoreName == nil {
		return ""
	}
	return *s.StoreName
}

// SetName sets the store name. An empty name unsets it.
func (s *Snapshot) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		s.StoreName = nil
		return
	}
	s.StoreName = &name
}

// Balance returns sum(due) - sum(paid) over the customer's active
// transactions. Deleted transactions never contribute.
func (s *Snapshot) Balance(customerID int64) decimal.Decimal {
	total := decimal.Zero
	for i := range s.Transactions {
		if s.Transactions[i].CustomerID == customerID {
			total = total.Add(s.Transactions[i].Signed())
		}
	}
	return total
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Customers:           cloneCustomers(s.Customers),
		Transactions:        cloneTransactions(s.Transactions),
		DeletedCustomers:    cloneCustomers(s.DeletedCustomers),
		DeletedTransactions: cloneTransactions(s.DeletedTransactions),
		LastUpdated:         s.LastUpdated,
	}
	if s.StoreName != nil {
		name := *s.StoreName
		out.StoreName = &name
	}
	return out
}

// Validate checks that no customer or transaction is both active and deleted.
func (s *Snapshot) Validate() error {
	customers := make(map[int64]bool, len(s.Customers))
	for _, c := range s.Customers {
		customers[c.ID] = true
	}
	for _, c := range s.DeletedCustomers {
		if customers[c.ID] {
			return fmt.Errorf("customer %d is both active and deleted", c.ID)
		}
	}

	txns := make(map[int64]bool, len(s.Transactions))
	for _, t := range s.Transactions {
		txns[t.ID] = true
	}
	for _, t := range s.DeletedTransactions {
		if txns[t.ID] {
			return fmt.Errorf("transaction %d is both active and deleted", t.ID)
		}
	}
	return nil
}

// normalize replaces nil collections with empty ones.
func (s *Snapshot) normalize() {
	if s.Customers == nil {
		s.Customers = []Customer{}
	}
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
	if s.DeletedCustomers == nil {
		s.DeletedCustomers = []Customer{}
	}
	if s.DeletedTransactions == nil {
		s.DeletedTransactions = []Transaction{}
	}
}

func cloneCustomers(in []Customer) []Customer {
	out := make([]Customer, len(in))
	copy(out, in)
	for i := range out {
		if out[i].DeletedAt != nil {
			at := *out[i].DeletedAt
			out[i].DeletedAt = &at
		}
	}
	return out
}

func cloneTransactions(in []Transaction) []Transaction {
	out := make([]Transaction, len(in))
	copy(out, in)
	for i := range out {
		if out[i].DeletedAt != nil {
			at := *out[i].DeletedAt
			out[i].DeletedAt = &at
		}
	}
	return out
}
