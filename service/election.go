package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voteledger/ledger"
	"voteledger/models"
	"voteledger/registry"
	"voteledger/storage"
)

var (
	ErrSessionClosed    = errors.New("voting session has ended")
	ErrUnknownCandidate = errors.New("candidate is not registered")
	ErrCandidateExists  = errors.New("candidate already registered")
)

// Config carries the election-level settings. BatchSize of 0 disables
// automatic sealing; every seal then has to be requested explicitly.
type Config struct {
	ElectionID      string
	SessionDuration time.Duration
	BatchSize       int
	Seal            models.SealPolicy
}

// ElectionService wires the ledger core to the surrounding subsystems:
// voter registry, fraud gate (held by the ledger), session window, snapshot
// store and candidate list.
type ElectionService struct {
	ledger   *ledger.Ledger
	registry *registry.Registry
	session  *VotingSession
	store    *storage.SnapshotStore
	metrics  *MetricsCollector

	mu         sync.RWMutex
	candidates map[string]bool

	batchSize int
	log       zerolog.Logger
}

func New(lgr *ledger.Ledger, reg *registry.Registry, store *storage.SnapshotStore, cfg Config, log zerolog.Logger) *ElectionService {
	return &ElectionService{
		ledger:     lgr,
		registry:   reg,
		session:    NewVotingSession(cfg.SessionDuration),
		store:      store,
		metrics:    NewMetricsCollector(),
		candidates: make(map[string]bool),
		batchSize:  cfg.BatchSize,
		log:        log.With().Str("component", "election").Logger(),
	}
}

// AddCandidate registers a candidate id votes may reference.
func (es *ElectionService) AddCandidate(candidateID string) error {
	if candidateID == "" {
		return errors.New("candidate id is required")
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if es.candidates[candidateID] {
		return ErrCandidateExists
	}
	es.candidates[candidateID] = true
	return nil
}

// Candidates returns the registered candidate ids in stable order.
func (es *ElectionService) Candidates() []string {
	es.mu.RLock()
	defer es.mu.RUnlock()

	names := make([]string, 0, len(es.candidates))
	for c := range es.candidates {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// RegisterVoter records a voter while the session is open.
func (es *ElectionService) RegisterVoter(voterID, name, email, domain string) (*registry.Voter, error) {
	if !es.session.IsActive() {
		return nil, ErrSessionClosed
	}

	start := time.Now()
	voter, err := es.registry.Register(voterID, name, email, domain)
	es.metrics.RecordRegistration(time.Since(start))
	return voter, err
}

// CastVote resolves the voter's credential and metadata and submits the vote
// to the ledger. When the pool reaches the configured batch size the pending
// votes are sealed into a block immediately.
func (es *ElectionService) CastVote(voterID, candidateID string) (string, error) {
	if !es.session.IsActive() {
		return "", ErrSessionClosed
	}

	es.mu.RLock()
	known := es.candidates[candidateID]
	es.mu.RUnlock()
	if !known {
		return "", ErrUnknownCandidate
	}

	voter, err := es.registry.Lookup(voterID)
	if err != nil {
		return "", err
	}
	meta, err := es.registry.Metadata(voterID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	receipt, err := es.ledger.SubmitVote(candidateID, voter.UniqueCode, meta)
	es.metrics.RecordSubmit(time.Since(start))
	if err != nil {
		return "", err
	}

	if es.batchSize > 0 && es.ledger.Pending() >= es.batchSize {
		if _, err := es.SealBlock(); err != nil && !errors.Is(err, ledger.ErrNothingToSeal) {
			es.log.Error().Err(err).Msg("batch seal failed, votes remain pooled")
		}
	}

	return receipt, nil
}

// SealBlock seals the pending pool into a new block.
func (es *ElectionService) SealBlock() (uint64, error) {
	start := time.Now()
	index, err := es.ledger.Seal()
	es.metrics.RecordSeal(time.Since(start), err == nil)
	return index, err
}

func (es *ElectionService) VerifyChain() ledger.VerifyResult {
	return es.ledger.VerifyChain()
}

func (es *ElectionService) VerifyReceipt(receiptID string) (*ledger.Proof, error) {
	return es.ledger.VerifyReceipt(receiptID)
}

// Results holds the committed tally per candidate. Candidates without votes
// appear with a zero count.
type Results struct {
	Results map[string]int `json:"results"`
	Total   int            `json:"total_votes"`
}

func (es *ElectionService) Results() Results {
	tally := es.ledger.Tally()
	for _, c := range es.Candidates() {
		if _, ok := tally[c]; !ok {
			tally[c] = 0
		}
	}
	return Results{Results: tally, Total: es.ledger.TotalVotes()}
}

// TurnoutReport relates cast votes to registered voters.
type TurnoutReport struct {
	RegisteredVoters int     `json:"registered_voters"`
	CommittedVotes   int     `json:"committed_votes"`
	PendingVotes     int     `json:"pending_votes"`
	TurnoutPercent   float64 `json:"turnout_percent"`
}

func (es *ElectionService) Turnout() TurnoutReport {
	report := TurnoutReport{
		RegisteredVoters: es.registry.Count(),
		CommittedVotes:   es.ledger.TotalVotes(),
		PendingVotes:     es.ledger.Pending(),
	}
	if report.RegisteredVoters > 0 {
		cast := report.CommittedVotes + report.PendingVotes
		report.TurnoutPercent = float64(cast) / float64(report.RegisteredVoters) * 100
	}
	return report
}

// BlockInfo is the per-block summary served to the dashboard layer.
type BlockInfo struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Transactions int    `json:"transactions"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
}

func (es *ElectionService) ChainInfo() []BlockInfo {
	blocks := es.ledger.Snapshot()
	info := make([]BlockInfo, len(blocks))
	for i, b := range blocks {
		info[i] = BlockInfo{
			Index:        b.Index,
			Timestamp:    b.Timestamp,
			Transactions: len(b.Transactions),
			Hash:         fmt.Sprintf("%x", b.Hash),
			PrevHash:     fmt.Sprintf("%x", b.PrevHash),
		}
	}
	return info
}

// Snapshot exports the chain for audit or persistence.
func (es *ElectionService) Snapshot() []*models.Block {
	return es.ledger.Snapshot()
}

// SaveSnapshot persists the current chain through the snapshot store.
func (es *ElectionService) SaveSnapshot() error {
	if es.store == nil {
		return errors.New("no snapshot store configured")
	}
	return es.store.Save(es.ledger.Snapshot())
}

func (es *ElectionService) IsVotingActive() bool {
	return es.session.IsActive()
}

func (es *ElectionService) SessionRemaining() time.Duration {
	return es.session.Remaining()
}

func (es *ElectionService) Metrics() MetricsReport {
	return es.metrics.Report()
}

// Close ends the session, seals any pending votes and writes a final
// snapshot when a store is configured.
func (es *ElectionService) Close() error {
	es.session.End()

	if _, err := es.SealBlock(); err != nil && !errors.Is(err, ledger.ErrNothingToSeal) {
		return fmt.Errorf("sealing remaining votes: %w", err)
	}
	if es.store != nil {
		if err := es.SaveSnapshot(); err != nil {
			return fmt.Errorf("writing final snapshot: %w", err)
		}
	}
	es.log.Info().Uint64("height", es.ledger.Height()).Msg("election closed")
	return nil
}
