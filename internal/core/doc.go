// Package core provides the business logic for writing CSV records to the remote record API.
//
// This package is the heart of the writer, containing the record pipeline
// independent of any transport or storage. HTTP dispatch, the collection
// catalog and the results ledger are supplied through the [Dispatcher],
// [Catalog] and [Recorder] interfaces, so tests can drive it with fakes.
//
// # Run Flow
//
//  1. [DiscoverCollections] lists one CSV file per collection
//  2. Preflight checks mandatory columns, collection support and payload fields
//  3. Each record is validated, its [Operation] resolved and dispatched
//  4. Every outcome is written to the ledger, then the [ErrorPolicy] decides
//     whether the run continues
//
// # Operation Modes
//
//   - delete: every record is deleted by id
//   - upsert: every record is patched by id, created if absent
//   - create_and_update: empty id creates, non-empty id updates
//
// # Error Handling
//
// Input problems found during preflight are fatal [ValidationError]s. A record
// with a missing id or an unparseable payload is a recoverable failure: it is
// recorded and counted, and only stops the run under fail-fast, where an
// [AbortError] is returned after the failing record's ledger entry is written.
package core
