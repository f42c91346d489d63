package ledger

// RegistrationMetadata carries the registration-time attributes of the voter
// behind a submission. The ledger never stores it; it is forwarded to the
// fraud gate verbatim.
type RegistrationMetadata struct {
	VoterID string `json:"voter_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Domain  string `json:"domain"`
}

// FraudGate is the external predicate consulted before a vote is admitted to
// the pool. A nil return accepts the vote; any error rejects it and its
// message becomes the rejection reason. Implementations must be safe for
// concurrent use; the ledger calls Evaluate while holding its write lock and
// does not coordinate with any gate-side state.
type FraudGate interface {
	Evaluate(candidateID string, fingerprint []byte, meta RegistrationMetadata) error
}

// AcceptAll is a FraudGate that admits every vote. Used when the surrounding
// system supplies no fraud screening.
type AcceptAll struct{}

func (AcceptAll) Evaluate(string, []byte, RegistrationMetadata) error { return nil }
