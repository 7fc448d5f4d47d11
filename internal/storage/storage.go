package storage

import (
	"context"
	"time"
)

// Submission statuses.
const (
	StatusConfirmed = "confirmed"
	StatusReverted  = "reverted"
	StatusFailed    = "failed"
)

// Submission is the audit record of one signed payload sent on-chain.
type Submission struct {
	CycleID       string
	SessionID     string
	Schema        string
	SchemaVersion string
	Signer        string
	Contract      string
	Method        string
	Nonce         string
	Deadline      time.Time // zero when the schema has no deadline
	Digest        string
	Signature     string
	TxHash        string
	Status        string
	GasUsed       uint64
	SubmittedAt   time.Time
}

// Storage records submissions for audit.
type Storage interface {
	RecordSubmission(ctx context.Context, sub *Submission) error
	Close() error
}
