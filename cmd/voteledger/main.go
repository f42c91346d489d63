package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voteledger/api"
	"voteledger/fraud"
	"voteledger/ledger"
	"voteledger/models"
	"voteledger/registry"
	"voteledger/service"
	"voteledger/storage"
)

type config struct {
	addr              string
	dataDir           string
	electionID        string
	difficulty        uint8
	maxSealIterations uint64
	batchSize         int
	sessionDuration   time.Duration
	logLevel          string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	cmd := &cobra.Command{
		Use:   "voteledger",
		Short: "Append-only vote ledger with receipt-based verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", ":8080", "API listen address")
	cmd.Flags().StringVar(&cfg.dataDir, "data-dir", "voteledger_data", "directory for snapshots and the voter registry")
	cmd.Flags().StringVar(&cfg.electionID, "election", "default-election", "election context identifier")
	cmd.Flags().Uint8Var(&cfg.difficulty, "difficulty", 1, "leading zero bytes required of block hashes")
	cmd.Flags().Uint64Var(&cfg.maxSealIterations, "max-seal-iterations", 10_000_000, "seal search bound before reporting a timeout (0 = unbounded)")
	cmd.Flags().IntVar(&cfg.batchSize, "batch-size", 10, "pool size that triggers automatic sealing (0 = manual sealing only)")
	cmd.Flags().DurationVar(&cfg.sessionDuration, "session", 24*time.Hour, "length of the voting session")
	cmd.Flags().StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, cfg *config) error {
	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.logLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	store, err := storage.NewSnapshotStore(cfg.dataDir, log)
	if err != nil {
		return err
	}

	ledgerCfg := ledger.Config{
		ElectionID: cfg.electionID,
		Seal: models.SealPolicy{
			Difficulty:    cfg.difficulty,
			MaxIterations: cfg.maxSealIterations,
		},
		Logger: log,
	}

	gate := fraud.Default()
	lgr, err := openLedger(store, gate, ledgerCfg, log)
	if err != nil {
		return err
	}

	reg, err := registry.New(registry.Config{
		VotersFilePath: filepath.Join(cfg.dataDir, "voters.json"),
		AutoSave:       true,
	}, log)
	if err != nil {
		return err
	}

	election := service.New(lgr, reg, store, service.Config{
		ElectionID:      cfg.electionID,
		SessionDuration: cfg.sessionDuration,
		BatchSize:       cfg.batchSize,
		Seal:            ledgerCfg.Seal,
	}, log)

	server := api.NewServer(election, cfg.addr, log)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Seals leftover votes and writes the final snapshot.
	if err := election.Close(); err != nil {
		return err
	}
	return nil
}

// openLedger restores the chain from the latest snapshot or starts a fresh
// ledger when none exists. A snapshot that fails verification aborts startup;
// it is never repaired silently.
func openLedger(store *storage.SnapshotStore, gate ledger.FraudGate, cfg ledger.Config, log zerolog.Logger) (*ledger.Ledger, error) {
	blocks, err := store.Load()
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return ledger.New(gate, cfg), nil
	}

	lgr, err := ledger.Restore(blocks, gate, cfg)
	if err != nil {
		return nil, fmt.Errorf("refusing to start from snapshot: %w", err)
	}
	log.Info().Int("blocks", len(blocks)).Msg("resumed from snapshot")
	return lgr, nil
}
