// Package registry keeps the voter registration records that feed
// registration metadata to the fraud gate. It is part of the surrounding
// system, not of the ledger core.
package registry

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"voteledger/ledger"
)

var (
	ErrVoterExists     = errors.New("voter id already registered")
	ErrEmailRegistered = errors.New("email address already registered")
	ErrVoterNotFound   = errors.New("voter not found")
)

// Voter is a single registration record. UniqueCode is the credential handed
// back to the voter; the ledger fingerprints it, the registry never does.
type Voter struct {
	VoterID      string    `json:"voter_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Domain       string    `json:"domain"`
	UniqueCode   string    `json:"unique_code"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Config struct {
	VotersFilePath string `json:"voters_file_path"`
	AutoSave       bool   `json:"auto_save"`
}

type Registry struct {
	mu     sync.RWMutex
	voters map[string]*Voter
	emails map[string]string // lowercased email -> voter id
	config Config
	log    zerolog.Logger
}

func New(config Config, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		voters: make(map[string]*Voter),
		emails: make(map[string]string),
		config: config,
		log:    log.With().Str("component", "registry").Logger(),
	}

	if config.VotersFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.VotersFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
		if err := r.loadFromFile(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register validates and records a new voter, returning the record with its
// derived unique code. Duplicate voter ids and duplicate emails are rejected
// at registration time.
func (r *Registry) Register(voterID, name, email, domain string) (*Voter, error) {
	if voterID == "" || name == "" || email == "" {
		return nil, errors.New("voter id, name and email are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.voters[voterID]; exists {
		return nil, ErrVoterExists
	}
	emailKey := strings.ToLower(strings.TrimSpace(email))
	if _, exists := r.emails[emailKey]; exists {
		return nil, ErrEmailRegistered
	}

	voter := &Voter{
		VoterID:      voterID,
		Name:         name,
		Email:        email,
		Domain:       domain,
		UniqueCode:   deriveUniqueCode(voterID, email),
		RegisteredAt: time.Now(),
	}
	r.voters[voterID] = voter
	r.emails[emailKey] = voterID

	if r.config.AutoSave && r.config.VotersFilePath != "" {
		if err := r.saveToFile(); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist voter registry")
		}
	}

	r.log.Info().Str("voter", voterID).Msg("voter registered")
	voterCopy := *voter
	return &voterCopy, nil
}

// Lookup returns a copy of the registration record.
func (r *Registry) Lookup(voterID string) (*Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[voterID]
	if !exists {
		return nil, ErrVoterNotFound
	}
	voterCopy := *voter
	return &voterCopy, nil
}

// Metadata builds the registration metadata the fraud gate evaluates.
func (r *Registry) Metadata(voterID string) (ledger.RegistrationMetadata, error) {
	voter, err := r.Lookup(voterID)
	if err != nil {
		return ledger.RegistrationMetadata{}, err
	}
	return ledger.RegistrationMetadata{
		VoterID: voter.VoterID,
		Name:    voter.Name,
		Email:   voter.Email,
		Domain:  voter.Domain,
	}, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.voters)
}

// Voters returns a copy of all registration records.
func (r *Registry) Voters() []Voter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voters := make([]Voter, 0, len(r.voters))
	for _, v := range r.voters {
		voters = append(voters, *v)
	}
	return voters
}

// deriveUniqueCode produces the credential returned to the voter at
// registration. Keccak over id and email, truncated to 16 hex characters.
func deriveUniqueCode(voterID, email string) string {
	digest := crypto.Keccak256([]byte(voterID), []byte(email))
	return hex.EncodeToString(digest)[:16]
}

func (r *Registry) loadFromFile() error {
	data, err := os.ReadFile(r.config.VotersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read voters file: %w", err)
	}

	var stored struct {
		Voters []*Voter `json:"voters"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal voter data: %w", err)
	}

	for _, voter := range stored.Voters {
		r.voters[voter.VoterID] = voter
		r.emails[strings.ToLower(strings.TrimSpace(voter.Email))] = voter.VoterID
	}
	r.log.Info().Int("voters", len(r.voters)).Msg("loaded voter registry")
	return nil
}

// saveToFile is called with the lock held.
func (r *Registry) saveToFile() error {
	stored := struct {
		Voters []*Voter `json:"voters"`
	}{Voters: make([]*Voter, 0, len(r.voters))}
	for _, v := range r.voters {
		stored.Voters = append(stored.Voters, v)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal voters: %w", err)
	}

	tempPath := r.config.VotersFilePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write voters file: %w", err)
	}
	if err := os.Rename(tempPath, r.config.VotersFilePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save voters file: %w", err)
	}
	return nil
}
