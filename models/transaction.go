package models

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// Transaction is a single vote record. Once created it is never mutated;
// the block hash covers every field, so any change is detectable.
type Transaction struct {
	ID          string `json:"id"`
	VoterFP     []byte `json:"voter_fingerprint"`
	CandidateID string `json:"candidate_id"`
	Timestamp   int64  `json:"timestamp"`
}

func NewTransaction(id string, fingerprint []byte, candidateID string, timestamp int64) Transaction {
	fp := make([]byte, len(fingerprint))
	copy(fp, fingerprint)
	return Transaction{
		ID:          id,
		VoterFP:     fp,
		CandidateID: candidateID,
		Timestamp:   timestamp,
	}
}

// Bytes returns the canonical encoding fed into the block hash. Fields are
// length-prefixed so no two distinct transactions share an encoding.
func (tx *Transaction) Bytes() []byte {
	buffer := new(bytes.Buffer)
	writeLengthPrefixed(buffer, []byte(tx.ID))
	writeLengthPrefixed(buffer, tx.VoterFP)
	writeLengthPrefixed(buffer, []byte(tx.CandidateID))
	binary.Write(buffer, binary.BigEndian, tx.Timestamp)
	return buffer.Bytes()
}

// FingerprintHex is the map key form of the voter fingerprint.
func (tx *Transaction) FingerprintHex() string {
	return hex.EncodeToString(tx.VoterFP)
}

func writeLengthPrefixed(buffer *bytes.Buffer, b []byte) {
	binary.Write(buffer, binary.BigEndian, uint32(len(b)))
	buffer.Write(b)
}
