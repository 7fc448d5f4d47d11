package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// RecordSubmission pretty-prints a submission to console.
func (c *ConsoleStorage) RecordSubmission(_ context.Context, sub *Submission) error {
	fmt.Println("\n" + rule)
	switch sub.Status {
	case StatusConfirmed:
		fmt.Printf("✅ SIGNED PAYLOAD CONFIRMED\n")
	case StatusReverted:
		fmt.Printf("❌ SIGNED PAYLOAD REVERTED\n")
	default:
		fmt.Printf("⚠️  SIGNED PAYLOAD NOT SUBMITTED\n")
	}
	fmt.Println(rule)
	fmt.Printf("Cycle:     %s\n", sub.CycleID)
	fmt.Printf("Schema:    %s@%s\n", sub.Schema, sub.SchemaVersion)
	fmt.Printf("Signer:    %s\n", sub.Signer)
	fmt.Printf("Contract:  %s\n", sub.Contract)
	fmt.Printf("Method:    %s\n", sub.Method)
	fmt.Println(rule)
	fmt.Printf("🔏 SIGNATURE\n")
	fmt.Printf("  Nonce:     %s\n", sub.Nonce)
	if !sub.Deadline.IsZero() {
		fmt.Printf("  Deadline:  %s\n", sub.Deadline.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Digest:    %s\n", sub.Digest)
	fmt.Printf("  Signature: %s\n", sub.Signature)
	if sub.TxHash != "" {
		fmt.Println(rule)
		fmt.Printf("⛓  TRANSACTION\n")
		fmt.Printf("  Hash:      %s\n", sub.TxHash)
		fmt.Printf("  Gas Used:  %d\n", sub.GasUsed)
	}
	fmt.Println(rule)

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
