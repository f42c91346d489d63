// Package storage persists ledger snapshots. The ledger itself stays
// in-memory; this is the surrounding system's side of the snapshot contract.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"voteledger/models"
)

const snapshotFile = "chain.cbor"

// snapshot is the on-disk envelope around the exported block sequence.
type snapshot struct {
	Version int             `cbor:"1,keyasint"`
	SavedAt int64           `cbor:"2,keyasint"`
	Blocks  []*models.Block `cbor:"3,keyasint"`
}

type SnapshotStore struct {
	mu      sync.Mutex
	baseDir string
	log     zerolog.Logger
}

func NewSnapshotStore(baseDir string, log zerolog.Logger) (*SnapshotStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotStore{
		baseDir: baseDir,
		log:     log.With().Str("component", "storage").Logger(),
	}, nil
}

// Save writes the block sequence atomically: encode, write to a temp file,
// rename over the previous snapshot.
func (s *SnapshotStore) Save(blocks []*models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := cbor.Marshal(snapshot{
		Version: 1,
		SavedAt: time.Now().Unix(),
		Blocks:  blocks,
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := filepath.Join(s.baseDir, snapshotFile)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save snapshot file: %w", err)
	}

	s.log.Info().Int("blocks", len(blocks)).Str("path", path).Msg("snapshot saved")
	return nil
}

// Load reads the latest snapshot. A missing file is not an error; it returns
// an empty block sequence so callers can start a fresh ledger.
func (s *SnapshotStore) Load() ([]*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, snapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s.log.Info().Int("blocks", len(snap.Blocks)).Msg("snapshot loaded")
	return snap.Blocks, nil
}
