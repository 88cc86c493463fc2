// Package store persists accounts and the sent-message ledger.
//
// Credentials are sealed by secretbox before they hit the database and
// only decrypted on load. The ledger is append-only: one row per
// successful send, never updated, never deleted.
package store

import (
	"fmt"
	"time"
)

// Account is the decrypted in-memory view of one stored account.
// Credential fields exist in plaintext only inside a running process.
type Account struct {
	ID      int64
	APIID   string
	APIHash string
	Handle  string // phone number in international format
}

// SendRecord is one ledger row.
type SendRecord struct {
	ID      int64
	Handle  string
	GroupID string
	Message string
	SentAt  time.Time
}

// CorruptRecordError reports one account row whose ciphertext failed to
// decrypt. The row is skipped; the rest of the load continues.
type CorruptRecordError struct {
	RecordID int64
	Err      error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("store: account row %d failed to decrypt: %v", e.RecordID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }
