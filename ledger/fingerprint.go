package ledger

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	fingerprintIterations = 4096
	fingerprintLength     = 32
)

// Fingerprint derives the one-way voter fingerprint from a raw credential.
// The election context is mixed in as salt, so the same credential yields the
// same fingerprint within one election but unlinkable fingerprints across
// elections. The raw credential is never stored anywhere.
func Fingerprint(credential, electionContext string) []byte {
	salt := []byte("voteledger/" + electionContext)
	return pbkdf2.Key([]byte(credential), salt, fingerprintIterations, fingerprintLength, sha256.New)
}
