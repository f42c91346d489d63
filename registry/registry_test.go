package registry

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)

	voter, err := r.Register("v1", "Jane Voter", "jane@city.gov", "city.gov")
	require.NoError(t, err)
	require.Equal(t, "v1", voter.VoterID)
	require.Len(t, voter.UniqueCode, 16)
	require.False(t, voter.RegisteredAt.IsZero())
	require.Equal(t, 1, r.Count())
}

func TestRegister_Validation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register("", "Jane Voter", "jane@city.gov", "city.gov")
	require.Error(t, err)
	_, err = r.Register("v1", "", "jane@city.gov", "city.gov")
	require.Error(t, err)
	_, err = r.Register("v1", "Jane Voter", "", "city.gov")
	require.Error(t, err)
	require.Equal(t, 0, r.Count())
}

func TestRegister_Duplicates(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register("v1", "Jane Voter", "jane@city.gov", "city.gov")
	require.NoError(t, err)

	_, err = r.Register("v1", "Jane Voter", "other@city.gov", "city.gov")
	require.ErrorIs(t, err, ErrVoterExists)

	_, err = r.Register("v2", "John Voter", "jane@city.gov", "city.gov")
	require.ErrorIs(t, err, ErrEmailRegistered)

	_, err = r.Register("v3", "John Voter", "JANE@city.gov", "city.gov")
	require.ErrorIs(t, err, ErrEmailRegistered, "email uniqueness ignores case")
}

func TestUniqueCode(t *testing.T) {
	require.Equal(t, deriveUniqueCode("v1", "jane@city.gov"), deriveUniqueCode("v1", "jane@city.gov"))
	require.NotEqual(t, deriveUniqueCode("v1", "jane@city.gov"), deriveUniqueCode("v2", "jane@city.gov"))
	require.NotEqual(t, deriveUniqueCode("v1", "jane@city.gov"), deriveUniqueCode("v1", "john@city.gov"))
}

func TestLookupAndMetadata(t *testing.T) {
	r := newTestRegistry(t)

	registered, err := r.Register("v1", "Jane Voter", "jane@city.gov", "city.gov")
	require.NoError(t, err)

	voter, err := r.Lookup("v1")
	require.NoError(t, err)
	require.Equal(t, registered.UniqueCode, voter.UniqueCode)

	// Lookup hands out a copy.
	voter.Name = "mutated"
	again, err := r.Lookup("v1")
	require.NoError(t, err)
	require.Equal(t, "Jane Voter", again.Name)

	meta, err := r.Metadata("v1")
	require.NoError(t, err)
	require.Equal(t, "v1", meta.VoterID)
	require.Equal(t, "jane@city.gov", meta.Email)
	require.Equal(t, "city.gov", meta.Domain)

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, ErrVoterNotFound)
	_, err = r.Metadata("missing")
	require.ErrorIs(t, err, ErrVoterNotFound)
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voters.json")
	cfg := Config{VotersFilePath: path, AutoSave: true}

	r, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	registered, err := r.Register("v1", "Jane Voter", "jane@city.gov", "city.gov")
	require.NoError(t, err)

	reloaded, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Count())

	voter, err := reloaded.Lookup("v1")
	require.NoError(t, err)
	require.Equal(t, registered.UniqueCode, voter.UniqueCode)

	// Email uniqueness survives the reload.
	_, err = reloaded.Register("v2", "John Voter", "jane@city.gov", "city.gov")
	require.ErrorIs(t, err, ErrEmailRegistered)
}

func TestPersistence_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voters.json")
	r, err := New(Config{VotersFilePath: path}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 0, r.Count())
}
