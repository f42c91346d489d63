package ledger

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voteledger/models"
)

// Config carries the explicit inputs of a ledger instance. ElectionID scopes
// duplicate-vote detection; Seal controls the mining predicate and its
// iteration bound.
type Config struct {
	ElectionID string
	Seal       models.SealPolicy
	Logger     zerolog.Logger
}

// VerifyResult is the outcome of a full chain walk. When Valid is false,
// BlockIndex names the first offending block and Err the reason.
type VerifyResult struct {
	Valid      bool
	BlockIndex uint64
	Err        error
}

// Proof is the inclusion evidence returned for a committed receipt.
// ChainIntact reports whether the containing block still hashes and links
// correctly; a tampered block yields a proof with ChainIntact=false rather
// than a not-found error.
type Proof struct {
	ReceiptID   string `json:"receipt_id"`
	BlockIndex  uint64 `json:"block_index"`
	Position    int    `json:"position"`
	CandidateID string `json:"candidate_id"`
	ChainIntact bool   `json:"chain_intact"`
}

type receiptLocation struct {
	blockIndex uint64
	position   int
}

// Ledger owns the chain, the pending transaction pool and the receipt index.
// A single RWMutex serializes all mutation (submit, seal) while verification
// and tally queries run concurrently under the read lock, so a reader can
// never observe a half-sealed block.
type Ledger struct {
	mu   sync.RWMutex
	cfg  Config
	gate FraudGate
	log  zerolog.Logger

	blocks   []*models.Block
	pool     []models.Transaction
	receipts map[string]receiptLocation // committed receipt id -> location
	pending  map[string]struct{}        // receipt ids still in the pool
	voted    map[string]struct{}        // fingerprints across chain and pool
}

// New constructs a fresh ledger holding only the genesis block.
func New(gate FraudGate, cfg Config) *Ledger {
	if gate == nil {
		gate = AcceptAll{}
	}
	l := &Ledger{
		cfg:      cfg,
		gate:     gate,
		log:      cfg.Logger.With().Str("component", "ledger").Logger(),
		blocks:   []*models.Block{models.NewGenesisBlock()},
		receipts: make(map[string]receiptLocation),
		pending:  make(map[string]struct{}),
		voted:    make(map[string]struct{}),
	}
	l.log.Info().Str("election", cfg.ElectionID).Msg("ledger initialized")
	return l
}

// Restore reconstructs a ledger from an external snapshot. The whole chain is
// verified before any state is accepted; a snapshot that fails verification
// is rejected with ErrInvalidGenesis or ErrBrokenChain and never repaired.
func Restore(blocks []*models.Block, gate FraudGate, cfg Config) (*Ledger, error) {
	if index, err := models.VerifyChain(blocks); err != nil {
		if errors.Is(err, models.ErrBadGenesis) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		return nil, fmt.Errorf("%w: block %d: %w", ErrBrokenChain, index, err)
	}

	l := New(gate, cfg)
	l.blocks = make([]*models.Block, len(blocks))
	for i, b := range blocks {
		l.blocks[i] = b.Clone()
	}

	for _, b := range l.blocks[1:] {
		for pos := range b.Transactions {
			tx := &b.Transactions[pos]
			if _, exists := l.receipts[tx.ID]; exists {
				return nil, fmt.Errorf("%w: duplicate receipt id %s in block %d", ErrBrokenChain, tx.ID, b.Index)
			}
			fp := tx.FingerprintHex()
			if _, exists := l.voted[fp]; exists {
				return nil, fmt.Errorf("%w: duplicate voter fingerprint in block %d", ErrBrokenChain, b.Index)
			}
			l.receipts[tx.ID] = receiptLocation{blockIndex: b.Index, position: pos}
			l.voted[fp] = struct{}{}
		}
	}

	l.log.Info().Int("blocks", len(l.blocks)).Msg("ledger restored from snapshot")
	return l, nil
}

// SubmitVote fingerprints the credential, runs duplicate and fraud checks and
// appends the accepted transaction to the pool. The returned receipt id is
// the voter's sole proof of submission. The chain itself is not touched.
func (l *Ledger) SubmitVote(candidateID, credential string, meta RegistrationMetadata) (string, error) {
	fingerprint := Fingerprint(credential, l.cfg.ElectionID)
	key := hex.EncodeToString(fingerprint)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.voted[key]; seen {
		return "", ErrDuplicateVote
	}
	if err := l.gate.Evaluate(candidateID, fingerprint, meta); err != nil {
		l.log.Debug().Str("candidate", candidateID).Str("reason", err.Error()).Msg("fraud gate rejected vote")
		return "", &FraudRejectedError{Reason: err.Error()}
	}

	receiptID := l.newReceiptID()
	tx := models.NewTransaction(receiptID, fingerprint, candidateID, l.nextTimestamp())
	l.pool = append(l.pool, tx)
	l.pending[receiptID] = struct{}{}
	l.voted[key] = struct{}{}

	l.log.Debug().Str("candidate", candidateID).Int("pool", len(l.pool)).Msg("vote admitted to pool")
	return receiptID, nil
}

// Seal moves the entire pool into a new block appended to the chain and
// updates the receipt index. An empty pool returns ErrNothingToSeal and a
// failed seal search returns models.ErrSealTimeout; in both cases chain and
// pool are left untouched.
func (l *Ledger) Seal() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pool) == 0 {
		return 0, ErrNothingToSeal
	}

	last := l.blocks[len(l.blocks)-1]
	transactions := make([]models.Transaction, len(l.pool))
	copy(transactions, l.pool)

	timestamp := time.Now().Unix()
	if timestamp <= last.Timestamp {
		timestamp = last.Timestamp + 1
	}

	block, err := models.NewBlock(uint64(len(l.blocks)), transactions, last.Hash, timestamp, l.cfg.Seal)
	if err != nil {
		return 0, fmt.Errorf("sealing block %d: %w", len(l.blocks), err)
	}

	l.blocks = append(l.blocks, block)
	for pos := range block.Transactions {
		id := block.Transactions[pos].ID
		l.receipts[id] = receiptLocation{blockIndex: block.Index, position: pos}
		delete(l.pending, id)
	}
	l.pool = nil

	l.log.Info().Uint64("index", block.Index).Int("txs", len(block.Transactions)).
		Uint64("nonce", block.Nonce).Msg("sealed block")
	return block.Index, nil
}

// VerifyChain recomputes every block hash and linkage without mutating any
// state. Integrity failures are reported, never repaired.
func (l *Ledger) VerifyChain() VerifyResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	index, err := models.VerifyChain(l.blocks)
	if err != nil {
		return VerifyResult{Valid: false, BlockIndex: index, Err: err}
	}
	return VerifyResult{Valid: true}
}

// VerifyReceipt looks the receipt up in the index and re-validates the
// containing block before answering, so a stale or corrupted index can never
// vouch for a tampered block.
func (l *Ledger) VerifyReceipt(receiptID string) (*Proof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	loc, ok := l.receipts[receiptID]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	if loc.blockIndex == 0 || loc.blockIndex >= uint64(len(l.blocks)) {
		return nil, ErrReceiptNotFound
	}
	block := l.blocks[loc.blockIndex]
	if loc.position < 0 || loc.position >= len(block.Transactions) {
		return nil, ErrReceiptNotFound
	}

	tx := &block.Transactions[loc.position]
	intact := block.Verify() == nil &&
		bytes.Equal(block.PrevHash, l.blocks[loc.blockIndex-1].Hash) &&
		tx.ID == receiptID

	return &Proof{
		ReceiptID:   receiptID,
		BlockIndex:  loc.blockIndex,
		Position:    loc.position,
		CandidateID: tx.CandidateID,
		ChainIntact: intact,
	}, nil
}

// Snapshot exports a deep copy of the chain for persistence or audit.
func (l *Ledger) Snapshot() []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	blocks := make([]*models.Block, len(l.blocks))
	for i, b := range l.blocks {
		blocks[i] = b.Clone()
	}
	return blocks
}

// Tally counts committed votes per candidate. Pool votes are not counted
// until they are sealed into a block.
func (l *Ledger) Tally() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	results := make(map[string]int)
	for _, b := range l.blocks[1:] {
		for i := range b.Transactions {
			results[b.Transactions[i].CandidateID]++
		}
	}
	return results
}

// TotalVotes is the number of committed transactions across the chain.
func (l *Ledger) TotalVotes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.receipts)
}

// Height is the number of blocks, genesis included.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

// Pending is the number of transactions waiting in the pool.
func (l *Ledger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pool)
}

// LastHash is the hash of the most recent block.
func (l *Ledger) LastHash() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]byte(nil), l.blocks[len(l.blocks)-1].Hash...)
}

// newReceiptID draws receipt ids until one is unused across both the
// committed index and the pool.
func (l *Ledger) newReceiptID() string {
	for {
		id := uuid.NewString()
		if _, taken := l.receipts[id]; taken {
			continue
		}
		if _, taken := l.pending[id]; taken {
			continue
		}
		return id
	}
}

// nextTimestamp keeps transaction timestamps non-decreasing within the pool.
func (l *Ledger) nextTimestamp() int64 {
	now := time.Now().Unix()
	if n := len(l.pool); n > 0 && now < l.pool[n-1].Timestamp {
		return l.pool[n-1].Timestamp
	}
	return now
}
