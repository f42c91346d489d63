// Package fraud implements the heuristic screening rules consulted by the
// ledger before a vote is admitted. The rules live entirely outside the
// ledger core; the ledger only sees the gate interface.
package fraud

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"voteledger/ledger"
)

// Rule is a single named fraud heuristic. A nil return accepts.
type Rule interface {
	Name() string
	Check(candidateID string, fingerprint []byte, meta ledger.RegistrationMetadata) error
}

// RuleSet composes rules into a ledger.FraudGate. Rules run in order and the
// first rejection wins; its reason is returned unchanged.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet(rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// Default is the rule set the registration subsystem ships with.
func Default() *RuleSet {
	return NewRuleSet(
		NewDomainRule(),
		NewDuplicateEmailRule(),
		NewNamePatternRule(),
	)
}

func (rs *RuleSet) Evaluate(candidateID string, fingerprint []byte, meta ledger.RegistrationMetadata) error {
	for _, rule := range rs.rules {
		if err := rule.Check(candidateID, fingerprint, meta); err != nil {
			return fmt.Errorf("%s: %w", rule.Name(), err)
		}
	}
	return nil
}

// DomainRule rejects voters registered under throwaway or test email domains.
type DomainRule struct {
	suspicious []string
}

func NewDomainRule(domains ...string) *DomainRule {
	if len(domains) == 0 {
		domains = []string{"spam.com", "fake.com", "test.com", "example.com", "mailinator.com"}
	}
	return &DomainRule{suspicious: domains}
}

func (r *DomainRule) Name() string { return "suspicious-domain" }

func (r *DomainRule) Check(_ string, _ []byte, meta ledger.RegistrationMetadata) error {
	domain := strings.ToLower(meta.Domain)
	if domain == "" {
		if at := strings.LastIndex(meta.Email, "@"); at >= 0 {
			domain = strings.ToLower(meta.Email[at+1:])
		}
	}
	for _, s := range r.suspicious {
		if strings.Contains(domain, s) {
			return fmt.Errorf("domain %q is on the suspicious list", domain)
		}
	}
	return nil
}

// DuplicateEmailRule rejects a vote when its email address was already seen
// on a vote from a different voter. The rule keeps its own state; the ledger
// does not coordinate with it.
type DuplicateEmailRule struct {
	mu   sync.Mutex
	seen map[string]string // email -> voter id that used it first
}

func NewDuplicateEmailRule() *DuplicateEmailRule {
	return &DuplicateEmailRule{seen: make(map[string]string)}
}

func (r *DuplicateEmailRule) Name() string { return "duplicate-email" }

func (r *DuplicateEmailRule) Check(_ string, _ []byte, meta ledger.RegistrationMetadata) error {
	email := strings.ToLower(strings.TrimSpace(meta.Email))
	if email == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.seen[email]; ok && owner != meta.VoterID {
		return errors.New("email address already used by another voter")
	}
	r.seen[email] = meta.VoterID
	return nil
}

// NamePatternRule rejects names that are implausibly short or incomplete.
type NamePatternRule struct {
	minLength int
	minWords  int
}

func NewNamePatternRule() *NamePatternRule {
	return &NamePatternRule{minLength: 5, minWords: 2}
}

func (r *NamePatternRule) Name() string { return "name-pattern" }

func (r *NamePatternRule) Check(_ string, _ []byte, meta ledger.RegistrationMetadata) error {
	name := strings.TrimSpace(meta.Name)
	if len(name) < r.minLength {
		return fmt.Errorf("name shorter than %d characters", r.minLength)
	}
	if len(strings.Fields(name)) < r.minWords {
		return fmt.Errorf("name has fewer than %d words", r.minWords)
	}
	return nil
}
