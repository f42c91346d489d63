package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateVote is returned when the voter fingerprint already
	// appears in a committed block or in the pending pool.
	ErrDuplicateVote = errors.New("voter has already cast a vote")

	// ErrFraudRejected marks rejections coming from the fraud gate. Match
	// with errors.Is; the gate's reason travels in FraudRejectedError.
	ErrFraudRejected = errors.New("vote rejected by fraud gate")

	// ErrNothingToSeal signals a benign no-op: the pool was empty.
	ErrNothingToSeal = errors.New("no pending transactions to seal")

	// ErrReceiptNotFound is returned for unknown or not yet committed receipts.
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrInvalidGenesis rejects a snapshot whose first block is not the
	// fixed genesis block.
	ErrInvalidGenesis = errors.New("snapshot has an invalid genesis block")

	// ErrBrokenChain rejects a snapshot that fails chain verification.
	ErrBrokenChain = errors.New("snapshot chain is broken")
)

// FraudRejectedError carries the gate's reason unchanged to the caller.
type FraudRejectedError struct {
	Reason string
}

func (e *FraudRejectedError) Error() string {
	return fmt.Sprintf("vote rejected by fraud gate: %s", e.Reason)
}

func (e *FraudRejectedError) Unwrap() error { return ErrFraudRejected }
