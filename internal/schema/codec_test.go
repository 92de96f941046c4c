package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixtureSnapshot(t *testing.T) *Snapshot {
	t.Helper()

	created := time.Date(2026, 1, 9, 10, 30, 0, 0, time.UTC)
	deleted := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	return &Snapshot{
		Customers: []Customer{
			{ID: 1, Name: "Ram", NameLocalized: "राम", Phone: "9876543210", CreatedAt: created},
		},
		Transactions: []Transaction{
			{ID: 10, CustomerID: 1, Date: NewDate(2026, 1, 9), Item: "rice", Amount: decimal.NewFromInt(500), Type: EntryDue, CreatedAt: created},
			{ID: 11, CustomerID: 1, Date: NewDate(2026, 1, 9), Item: "cash", Amount: decimal.RequireFromString("200.25"), Type: EntryPaid, Note: "upi", CreatedAt: created},
		},
		DeletedCustomers: []Customer{
			{ID: 2, Name: "Shyam", Phone: "9123456780", CreatedAt: created, DeletedAt: &deleted, DeletionBatch: "b-1"},
		},
		DeletedTransactions: []Transaction{
			{ID: 12, CustomerID: 2, Date: NewDate(2026, 1, 8), Item: "oil", Amount: decimal.NewFromInt(90), Type: EntryDue, CreatedAt: created, DeletedAt: &deleted, DeletionCause: CauseCustomer, DeletionBatch: "b-1"},
		},
		LastUpdated: created,
	}
}

func assertSameLedger(t *testing.T, want, got *Snapshot) {
	t.Helper()

	if len(got.Customers) != len(want.Customers) || len(got.DeletedCustomers) != len(want.DeletedCustomers) {
		t.Fatalf("customer counts differ: got %d/%d, want %d/%d",
			len(got.Customers), len(got.DeletedCustomers), len(want.Customers), len(want.DeletedCustomers))
	}
	if len(got.Transactions) != len(want.Transactions) || len(got.DeletedTransactions) != len(want.DeletedTransactions) {
		t.Fatalf("transaction counts differ: got %d/%d, want %d/%d",
			len(got.Transactions), len(got.DeletedTransactions), len(want.Transactions), len(want.DeletedTransactions))
	}

	checkCustomers := func(want, got []Customer) {
		for i := range want {
			w, g := want[i], got[i]
			if w.ID != g.ID || w.Name != g.Name || w.NameLocalized != g.NameLocalized || w.Phone != g.Phone || w.DeletionBatch != g.DeletionBatch {
				t.Errorf("customer %d mismatch: got %+v, want %+v", i, g, w)
			}
			if !w.CreatedAt.Equal(g.CreatedAt) {
				t.Errorf("customer %d createdAt = %v, want %v", i, g.CreatedAt, w.CreatedAt)
			}
			if (w.DeletedAt == nil) != (g.DeletedAt == nil) || (w.DeletedAt != nil && !w.DeletedAt.Equal(*g.DeletedAt)) {
				t.Errorf("customer %d deletedAt = %v, want %v", i, g.DeletedAt, w.DeletedAt)
			}
		}
	}
	checkTxns := func(want, got []Transaction) {
		for i := range want {
			w, g := want[i], got[i]
			if w.ID != g.ID || w.CustomerID != g.CustomerID || w.Item != g.Item || w.Type != g.Type || w.Note != g.Note {
				t.Errorf("transaction %d mismatch: got %+v, want %+v", i, g, w)
			}
			if !w.Amount.Equal(g.Amount) {
				t.Errorf("transaction %d amount = %s, want %s", i, g.Amount, w.Amount)
			}
			if w.Date.String() != g.Date.String() {
				t.Errorf("transaction %d date = %s, want %s", i, g.Date, w.Date)
			}
			if w.DeletionCause != g.DeletionCause || w.DeletionBatch != g.DeletionBatch {
				t.Errorf("transaction %d provenance = %q/%q, want %q/%q", i, g.DeletionCause, g.DeletionBatch, w.DeletionCause, w.DeletionBatch)
			}
		}
	}

	checkCustomers(want.Customers, got.Customers)
	checkCustomers(want.DeletedCustomers, got.DeletedCustomers)
	checkTxns(want.Transactions, got.Transactions)
	checkTxns(want.DeletedTransactions, got.DeletedTransactions)

	if want.Name() != got.Name() || (want.StoreName == nil) != (got.StoreName == nil) {
		t.Errorf("storeName = %v, want %v", got.StoreName, want.StoreName)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := fixtureSnapshot(t)
	snap.SetName("Sharma General Store")

	now := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	data, err := Encode(snap, now)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	assertSameLedger(t, snap, got)
	if !got.LastUpdated.Equal(now) {
		t.Errorf("lastUpdated = %v, want encode time %v", got.LastUpdated, now)
	}
	if !snap.LastUpdated.Equal(time.Date(2026, 1, 9, 10, 30, 0, 0, time.UTC)) {
		t.Error("Encode modified the caller's snapshot")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	snap := fixtureSnapshot(t)
	now := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)

	a, err := Encode(snap, now)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode(snap.Clone(), now)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(a) != string(b) {
		t.Error("Encode produced different bytes for equal snapshots")
	}
}

func TestEncodeAmountsAsNumbers(t *testing.T) {
	data, err := Encode(fixtureSnapshot(t), time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), `"amount": 200.25`) {
		t.Errorf("amount not encoded as a JSON number:\n%s", data)
	}
}

func TestEncodeWithoutStoreName(t *testing.T) {
	snap := NewEmptySnapshot(time.Now())

	data, err := Encode(snap, time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("output is not an object: %v", err)
	}
	if _, ok := raw["storeName"]; ok {
		t.Errorf("storeName key present for unset store name: %s", raw["storeName"])
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.StoreName != nil {
		t.Errorf("StoreName = %q, want nil", *got.StoreName)
	}
}

func TestEncodeNilCollections(t *testing.T) {
	data, err := Encode(&Snapshot{}, time.Now())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("nil collections encoded as null:\n%s", data)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		customers int
		deleted   int
	}{
		{
			name:      "missing collections",
			input:     `{"customers":[{"id":1,"name":"Ram","phone":"9876543210","createdAt":"2026-01-09T10:30:00.000Z"}]}`,
			customers: 1,
		},
		{
			name:  "empty object",
			input: `{}`,
		},
		{
			name:      "legacy nameHindi",
			input:     `{"deletedCustomers":[{"id":5,"name":"Sita","nameHindi":"सीता","phone":"9000000000","createdAt":"2025-12-01T00:00:00Z","deletedAt":"2025-12-02T00:00:00Z"}]}`,
			deleted:   1,
			customers: 0,
		},
		{
			name:    "not json",
			input:   `<html>`,
			wantErr: true,
		},
		{
			name:    "array document",
			input:   `[]`,
			wantErr: true,
		},
		{
			name:    "null document",
			input:   `null`,
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "  ",
			wantErr: true,
		},
		{
			name:    "wrong field type",
			input:   `{"customers": 3}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsDecodeError(err) {
					t.Errorf("error %v is not a DecodeError", err)
				}
				return
			}
			if got.Transactions == nil || got.DeletedTransactions == nil || got.Customers == nil || got.DeletedCustomers == nil {
				t.Error("missing collections decoded as nil")
			}
			if len(got.Customers) != tt.customers {
				t.Errorf("customers = %d, want %d", len(got.Customers), tt.customers)
			}
			if len(got.DeletedCustomers) != tt.deleted {
				t.Errorf("deletedCustomers = %d, want %d", len(got.DeletedCustomers), tt.deleted)
			}
		})
	}
}

func TestDecodeLegacyFields(t *testing.T) {
	input := `{
		"customers":[{"id":1733740000000,"name":"Sita","nameHindi":"सीता","phone":"9000000000","createdAt":"2024-12-09T10:26:40.000Z"}],
		"transactions":[{"id":1733740000001,"customerId":1733740000000,"date":"2024-12-09T00:00:00.000Z","item":"dal","amount":"120.5","type":"due","note":"","createdAt":"2024-12-09T10:26:40.000Z"}]
	}`

	got, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Customers[0].NameLocalized != "सीता" {
		t.Errorf("NameLocalized = %q, want legacy nameHindi value", got.Customers[0].NameLocalized)
	}
	txn := got.Transactions[0]
	if txn.Date.String() != "2024-12-09" {
		t.Errorf("Date = %s, want 2024-12-09", txn.Date)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("120.5")) {
		t.Errorf("Amount = %s, want 120.5", txn.Amount)
	}
	if got.Balance(1733740000000).String() != "120.5" {
		t.Errorf("Balance = %s, want 120.5", got.Balance(1733740000000))
	}
}
