// Package storage persists the set of delivered notice ids.
//
// Drivers:
//   - file: one id per line, append-only, fsync on every append
//   - sqlite: delivered_notices table (modernc.org/sqlite, no cgo)
//   - redis: a set under <prefix>:delivered
//   - memory: process-local, for tests and dry runs
//
// Every driver treats a repeated AddNotice as a no-op on the stored set.
package storage
