package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// HashSize is the length of block hashes in bytes.
const HashSize = sha256.Size

var (
	ErrSealTimeout   = errors.New("seal search exhausted the iteration bound")
	ErrHashMismatch  = errors.New("stored hash does not match recomputed hash")
	ErrDifficulty    = errors.New("hash does not satisfy the difficulty predicate")
	ErrBrokenLinkage = errors.New("previous hash does not match predecessor")
	ErrBadIndex      = errors.New("block index out of sequence")
	ErrBadTimestamp  = errors.New("block timestamp not after predecessor")
	ErrBadGenesis    = errors.New("genesis block does not match the fixed genesis")
)

// SealPolicy configures the proof-of-work predicate: how many leading zero
// bytes the block hash must carry and how many nonce candidates the seal
// search may try before giving up. MaxIterations of 0 means unbounded.
type SealPolicy struct {
	Difficulty    uint8  `json:"difficulty"`
	MaxIterations uint64 `json:"max_iterations"`
}

type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PrevHash     []byte        `json:"prev_hash"`
	Hash         []byte        `json:"hash"`
	Nonce        uint64        `json:"nonce"`
	Difficulty   uint8         `json:"difficulty"`
}

// NewGenesisBlock returns the fixed genesis block every ledger starts from.
// All fields are constants, so its hash is a constant too and chain
// verification can compare block 0 against it field by field.
func NewGenesisBlock() *Block {
	block := &Block{
		Index:     0,
		Timestamp: 0,
		PrevHash:  make([]byte, HashSize),
	}
	block.Hash = block.ComputeHash()
	return block
}

// NewBlock builds and seals a block from the given transactions. On
// ErrSealTimeout no usable block is returned.
func NewBlock(index uint64, transactions []Transaction, prevHash []byte, timestamp int64, policy SealPolicy) (*Block, error) {
	block := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: transactions,
		PrevHash:     prevHash,
		Difficulty:   policy.Difficulty,
	}
	if err := block.Seal(policy.MaxIterations); err != nil {
		return nil, err
	}
	return block, nil
}

// Seal searches monotonically from nonce 0 for a hash with the required
// number of leading zero bytes. maxIterations of 0 removes the bound.
func (b *Block) Seal(maxIterations uint64) error {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.ComputeHash()

		if bytes.HasPrefix(b.Hash, target) {
			return nil
		}

		nonce++
		if maxIterations > 0 && nonce >= maxIterations {
			return ErrSealTimeout
		}
	}
}

// ComputeHash digests every stored field except the hash itself, including
// the difficulty and each transaction, so any single-bit change to a
// committed field is detectable.
func (b *Block) ComputeHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	buffer.WriteByte(b.Difficulty)
	binary.Write(buffer, binary.BigEndian, uint32(len(b.Transactions)))
	for i := range b.Transactions {
		buffer.Write(b.Transactions[i].Bytes())
	}
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)

	hash := sha256.Sum256(buffer.Bytes())
	return hash[:]
}

// Verify recomputes the block hash and rechecks the difficulty predicate
// against the stored fields.
func (b *Block) Verify() error {
	calculated := b.ComputeHash()
	if !bytes.Equal(calculated, b.Hash) {
		return ErrHashMismatch
	}

	target := make([]byte, b.Difficulty)
	if !bytes.HasPrefix(calculated, target) {
		return ErrDifficulty
	}
	return nil
}

// VerifyLink checks the block against its predecessor: valid hash, linkage,
// index sequence and timestamp order.
func (b *Block) VerifyLink(prev *Block) error {
	if err := b.Verify(); err != nil {
		return err
	}
	if !bytes.Equal(b.PrevHash, prev.Hash) {
		return ErrBrokenLinkage
	}
	if b.Index != prev.Index+1 {
		return ErrBadIndex
	}
	if b.Timestamp <= prev.Timestamp {
		return ErrBadTimestamp
	}
	return nil
}

// Clone returns a deep copy so snapshots cannot alias ledger-owned state.
func (b *Block) Clone() *Block {
	clone := &Block{
		Index:      b.Index,
		Timestamp:  b.Timestamp,
		PrevHash:   append([]byte(nil), b.PrevHash...),
		Hash:       append([]byte(nil), b.Hash...),
		Nonce:      b.Nonce,
		Difficulty: b.Difficulty,
	}
	if b.Transactions != nil {
		clone.Transactions = make([]Transaction, len(b.Transactions))
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			clone.Transactions[i] = NewTransaction(tx.ID, tx.VoterFP, tx.CandidateID, tx.Timestamp)
		}
	}
	return clone
}

// VerifyChain walks the whole chain starting from genesis. It returns the
// index of the first offending block and the reason, or (0, nil) when the
// chain is valid. It never mutates the blocks.
func VerifyChain(blocks []*Block) (uint64, error) {
	if len(blocks) == 0 {
		return 0, ErrBadGenesis
	}
	if err := verifyGenesis(blocks[0]); err != nil {
		return 0, err
	}

	for i := 1; i < len(blocks); i++ {
		if err := blocks[i].VerifyLink(blocks[i-1]); err != nil {
			return uint64(i), err
		}
	}
	return 0, nil
}

func verifyGenesis(b *Block) error {
	genesis := NewGenesisBlock()
	switch {
	case b == nil,
		b.Index != genesis.Index,
		b.Timestamp != genesis.Timestamp,
		len(b.Transactions) != 0,
		!bytes.Equal(b.PrevHash, genesis.PrevHash),
		b.Nonce != genesis.Nonce,
		b.Difficulty != genesis.Difficulty,
		!bytes.Equal(b.Hash, genesis.Hash):
		return ErrBadGenesis
	}
	return nil
}

// String is used in log output only.
func (b *Block) String() string {
	return fmt.Sprintf("block %d (%d txs, hash %x)", b.Index, len(b.Transactions), b.Hash)
}
