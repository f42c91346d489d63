package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voteledger/ledger"
	"voteledger/models"
)

func testLedgerConfig() ledger.Config {
	return ledger.Config{
		ElectionID: "test-election",
		Seal:       models.SealPolicy{Difficulty: 1, MaxIterations: 1 << 24},
	}
}

func sealedChain(t *testing.T) []*models.Block {
	t.Helper()
	l := ledger.New(nil, testLedgerConfig())
	for _, voter := range []string{"v1", "v2"} {
		_, err := l.SubmitVote("candidate-a", voter, ledger.RegistrationMetadata{
			VoterID: voter,
			Name:    "Jane Voter",
			Email:   voter + "@city.gov",
			Domain:  "city.gov",
		})
		require.NoError(t, err)
	}
	_, err := l.Seal()
	require.NoError(t, err)
	return l.Snapshot()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	blocks := sealedChain(t)
	require.NoError(t, store.Save(blocks))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, len(blocks))

	// The reloaded chain must verify and restore byte for byte.
	_, err = models.VerifyChain(loaded)
	require.NoError(t, err)
	require.Equal(t, blocks, loaded)

	restored, err := ledger.Restore(loaded, nil, testLedgerConfig())
	require.NoError(t, err)
	require.EqualValues(t, 2, restored.Height())
}

func TestSave_Overwrites(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	first := sealedChain(t)
	require.NoError(t, store.Save(first[:1]))
	require.NoError(t, store.Save(first))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, len(first))
}

func TestLoad_MissingFile(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	blocks, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, blocks)
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSnapshotStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain.cbor"), []byte("not cbor"), 0644))

	_, err = store.Load()
	require.Error(t, err)
}
