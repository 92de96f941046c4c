// Package schema defines the khata ledger document and its codecs.
//
// # Overview
//
// The whole durable state of a store is one JSON document, the Snapshot.
// It is written to the remote blob store as a single full-content replace
// and mirrored into the local cache. There are no partial updates.
//
//	{
//	  "customers": [{"id": 1733740000000, "name": "Ram", "phone": "9876543210", ...}],
//	  "transactions": [{"id": ..., "customerId": ..., "date": "2026-01-10",
//	                    "item": "rice", "amount": 500, "type": "due", ...}],
//	  "deletedCustomers": [],
//	  "deletedTransactions": [],
//	  "lastUpdated": "2026-01-10T07:36:29Z",
//	  "storeName": "Sharma General Store"
//	}
//
// # Codecs
//
//   - Encode / Decode: the canonical document. Encode stamps lastUpdated.
//     Decode tolerates documents written by older schema versions.
//   - DailySummaryCSV: a lossy per-day export of active customer balances.
//
// # Usage Examples
//
//	snap := schema.NewEmptySnapshot(time.Now())
//	data, err := schema.Encode(snap, time.Now())
//
//	snap, err := schema.Decode(data)
//	var decErr *schema.DecodeError
//	if errors.As(err, &decErr) {
//	    // treat as absent
//	}
//
// Entry validation for new customers and transactions lives here too
// (NewCustomer, NewTransaction) so every caller rejects the same input.
package schema
