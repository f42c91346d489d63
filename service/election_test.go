package service

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voteledger/ledger"
	"voteledger/models"
	"voteledger/registry"
	"voteledger/storage"
)

func testServiceConfig() Config {
	return Config{
		ElectionID:      "test-election",
		SessionDuration: time.Hour,
		BatchSize:       0,
		Seal:            models.SealPolicy{Difficulty: 1, MaxIterations: 1 << 24},
	}
}

func newTestService(t *testing.T, cfg Config) *ElectionService {
	t.Helper()

	lgr := ledger.New(nil, ledger.Config{ElectionID: cfg.ElectionID, Seal: cfg.Seal})
	reg, err := registry.New(registry.Config{}, zerolog.Nop())
	require.NoError(t, err)

	es := New(lgr, reg, nil, cfg, zerolog.Nop())
	require.NoError(t, es.AddCandidate("alice"))
	require.NoError(t, es.AddCandidate("bob"))
	return es
}

func registerAndVote(t *testing.T, es *ElectionService, voterID, candidateID string) string {
	t.Helper()
	_, err := es.RegisterVoter(voterID, "Jane Voter", voterID+"@city.gov", "city.gov")
	require.NoError(t, err)
	receipt, err := es.CastVote(voterID, candidateID)
	require.NoError(t, err)
	return receipt
}

func TestAddCandidate(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	require.Equal(t, []string{"alice", "bob"}, es.Candidates())
	require.ErrorIs(t, es.AddCandidate("alice"), ErrCandidateExists)
	require.Error(t, es.AddCandidate(""))
}

func TestCastVote(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	receipt := registerAndVote(t, es, "v1", "alice")
	require.NotEmpty(t, receipt)

	_, err := es.SealBlock()
	require.NoError(t, err)

	proof, err := es.VerifyReceipt(receipt)
	require.NoError(t, err)
	require.Equal(t, "alice", proof.CandidateID)
	require.True(t, proof.ChainIntact)
	require.True(t, es.VerifyChain().Valid)
}

func TestCastVote_UnknownCandidate(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	_, err := es.RegisterVoter("v1", "Jane Voter", "v1@city.gov", "city.gov")
	require.NoError(t, err)

	_, err = es.CastVote("v1", "nobody")
	require.ErrorIs(t, err, ErrUnknownCandidate)
}

func TestCastVote_UnregisteredVoter(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	_, err := es.CastVote("ghost", "alice")
	require.ErrorIs(t, err, registry.ErrVoterNotFound)
}

func TestCastVote_Duplicate(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	_, err := es.CastVote("v1", "bob")
	require.ErrorIs(t, err, ledger.ErrDuplicateVote)
}

func TestBatchSealing(t *testing.T) {
	cfg := testServiceConfig()
	cfg.BatchSize = 2
	es := newTestService(t, cfg)

	registerAndVote(t, es, "v1", "alice")
	require.Len(t, es.ChainInfo(), 1, "one vote stays pooled")

	registerAndVote(t, es, "v2", "bob")
	require.Len(t, es.ChainInfo(), 2, "second vote fills the batch and seals")
	require.True(t, es.VerifyChain().Valid)
}

func TestSessionClosed(t *testing.T) {
	es := newTestService(t, testServiceConfig())
	registerAndVote(t, es, "v1", "alice")

	require.NoError(t, es.Close())

	_, err := es.RegisterVoter("v2", "John Voter", "v2@city.gov", "city.gov")
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = es.CastVote("v1", "alice")
	require.ErrorIs(t, err, ErrSessionClosed)
	require.False(t, es.IsVotingActive())
	require.Zero(t, es.SessionRemaining())
}

func TestClose_SealsPendingVotes(t *testing.T) {
	store, err := storage.NewSnapshotStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	cfg := testServiceConfig()
	lgr := ledger.New(nil, ledger.Config{ElectionID: cfg.ElectionID, Seal: cfg.Seal})
	reg, regErr := registry.New(registry.Config{}, zerolog.Nop())
	require.NoError(t, regErr)
	es := New(lgr, reg, store, cfg, zerolog.Nop())
	require.NoError(t, es.AddCandidate("alice"))

	registerAndVote(t, es, "v1", "alice")
	require.NoError(t, es.Close())
	require.Len(t, es.ChainInfo(), 2)

	// The final snapshot must be loadable and restorable.
	blocks, err := store.Load()
	require.NoError(t, err)
	restored, err := ledger.Restore(blocks, nil, ledger.Config{ElectionID: cfg.ElectionID, Seal: cfg.Seal})
	require.NoError(t, err)
	require.EqualValues(t, 2, restored.Height())
}

func TestClose_EmptyPool(t *testing.T) {
	es := newTestService(t, testServiceConfig())
	require.NoError(t, es.Close(), "closing with nothing pending is not an error")
}

func TestResults(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	registerAndVote(t, es, "v2", "alice")
	registerAndVote(t, es, "v3", "bob")
	_, err := es.SealBlock()
	require.NoError(t, err)

	results := es.Results()
	require.Equal(t, map[string]int{"alice": 2, "bob": 1}, results.Results)
	require.Equal(t, 3, results.Total)
}

func TestResults_ZeroFilled(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	_, err := es.SealBlock()
	require.NoError(t, err)

	results := es.Results()
	require.Equal(t, 0, results.Results["bob"], "candidates without votes appear with zero")
	require.Contains(t, results.Results, "bob")
}

func TestTurnout(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	registerAndVote(t, es, "v2", "bob")
	_, err := es.RegisterVoter("v3", "Abstaining Voter", "v3@city.gov", "city.gov")
	require.NoError(t, err)
	_, err = es.SealBlock()
	require.NoError(t, err)

	report := es.Turnout()
	require.Equal(t, 3, report.RegisteredVoters)
	require.Equal(t, 2, report.CommittedVotes)
	require.Equal(t, 0, report.PendingVotes)
	require.InDelta(t, 66.67, report.TurnoutPercent, 0.01)
}

func TestChainInfo(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	_, err := es.SealBlock()
	require.NoError(t, err)

	info := es.ChainInfo()
	require.Len(t, info, 2)
	require.EqualValues(t, 0, info[0].Index)
	require.EqualValues(t, 1, info[1].Index)
	require.Equal(t, 1, info[1].Transactions)
	require.Equal(t, info[0].Hash, info[1].PrevHash)
}

func TestMetrics(t *testing.T) {
	es := newTestService(t, testServiceConfig())

	registerAndVote(t, es, "v1", "alice")
	_, err := es.SealBlock()
	require.NoError(t, err)
	_, err = es.SealBlock()
	require.ErrorIs(t, err, ledger.ErrNothingToSeal)

	report := es.Metrics()
	require.EqualValues(t, 1, report.Registration.Count)
	require.EqualValues(t, 1, report.Submit.Count)
	require.EqualValues(t, 2, report.Seal.Count)
	require.EqualValues(t, 1, report.BlocksSealed, "failed seals do not count as sealed blocks")
}

func TestVotingSession(t *testing.T) {
	session := NewVotingSession(time.Hour)
	require.True(t, session.IsActive())
	require.Greater(t, session.Remaining(), time.Duration(0))

	session.End()
	require.False(t, session.IsActive())
	require.Zero(t, session.Remaining())

	expired := NewVotingSession(-time.Second)
	require.False(t, expired.IsActive())
}

func TestQueueProcessor(t *testing.T) {
	es := newTestService(t, testServiceConfig())
	qp := NewQueueProcessor(es, 8, zerolog.Nop())
	qp.Start()
	defer qp.Stop()

	result := <-qp.QueueRegistration(RegistrationRequest{
		VoterID: "v1", Name: "Jane Voter", Email: "v1@city.gov", Domain: "city.gov",
	})
	require.True(t, result.Success)
	require.Equal(t, "v1", result.VoterID)

	voteResult := <-qp.QueueVote("v1", "alice")
	require.True(t, voteResult.Success)
	require.NotEmpty(t, voteResult.ReceiptID)

	rejected := <-qp.QueueVote("v1", "alice")
	require.False(t, rejected.Success)
	require.NotEmpty(t, rejected.ErrorMessage)

	unknown := <-qp.QueueVote("ghost", "alice")
	require.False(t, unknown.Success)
}
