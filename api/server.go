package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"voteledger/ledger"
	"voteledger/registry"
	"voteledger/service"
)

type Server struct {
	election   *service.ElectionService
	router     *mux.Router
	httpServer *http.Server
	log        zerolog.Logger
}

type RegisterVoterRequest struct {
	VoterID string `json:"voter_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Domain  string `json:"domain"`
}

type RegisterVoterResponse struct {
	VoterID    string `json:"voter_id"`
	UniqueCode string `json:"unique_code"`
}

type CastVoteRequest struct {
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
}

type CastVoteResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type SealResponse struct {
	BlockIndex uint64 `json:"block_index"`
}

type VerifyChainResponse struct {
	Valid      bool   `json:"valid"`
	BlockIndex uint64 `json:"block_index,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ChainResponse struct {
	BlockCount int                 `json:"block_count"`
	Blocks     []service.BlockInfo `json:"blocks"`
	IsValid    bool                `json:"is_valid"`
}

type StatsResponse struct {
	Turnout          service.TurnoutReport `json:"turnout"`
	Metrics          service.MetricsReport `json:"metrics"`
	SessionActive    bool                  `json:"session_active"`
	SessionRemaining string                `json:"session_remaining"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(election *service.ElectionService, addr string, log zerolog.Logger) *Server {
	s := &Server{
		election: election,
		router:   mux.NewRouter(),
		log:      log.With().Str("component", "api").Logger(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr: addr,
		Handler: handlers.RecoveryHandler()(handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(s.logRequests(s.router))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/voters", s.handleRegisterVoter).Methods(http.MethodPost)
	api.HandleFunc("/votes", s.handleCastVote).Methods(http.MethodPost)
	api.HandleFunc("/seal", s.handleSeal).Methods(http.MethodPost)
	api.HandleFunc("/chain", s.handleChain).Methods(http.MethodGet)
	api.HandleFunc("/chain/verify", s.handleVerifyChain).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{id}", s.handleVerifyReceipt).Methods(http.MethodGet)
	api.HandleFunc("/candidates", s.handleAddCandidate).Methods(http.MethodPost)
	api.HandleFunc("/candidates", s.handleCandidates).Methods(http.MethodGet)
	api.HandleFunc("/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req RegisterVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	voter, err := s.election.RegisterVoter(req.VoterID, req.Name, req.Email, req.Domain)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, RegisterVoterResponse{
		VoterID:    voter.VoterID,
		UniqueCode: voter.UniqueCode,
	})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	receipt, err := s.election.CastVote(req.VoterID, req.CandidateID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusCreated, CastVoteResponse{ReceiptID: receipt})
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	index, err := s.election.SealBlock()
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, SealResponse{BlockIndex: index})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	info := s.election.ChainInfo()
	s.writeJSON(w, http.StatusOK, ChainResponse{
		BlockCount: len(info),
		Blocks:     info,
		IsValid:    s.election.VerifyChain().Valid,
	})
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	result := s.election.VerifyChain()
	resp := VerifyChainResponse{Valid: result.Valid}
	if !result.Valid {
		resp.BlockIndex = result.BlockIndex
		resp.Reason = result.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	receiptID := mux.Vars(r)["id"]
	proof, err := s.election.VerifyReceipt(receiptID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.election.AddCandidate(req.CandidateID); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"candidate_id": req.CandidateID})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"candidates": s.election.Candidates()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.election.Results())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Turnout:          s.election.Turnout(),
		Metrics:          s.election.Metrics(),
		SessionActive:    s.election.IsVotingActive(),
		SessionRemaining: s.election.SessionRemaining().String(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).Msg("request handled")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDuplicateVote),
		errors.Is(err, registry.ErrVoterExists),
		errors.Is(err, registry.ErrEmailRegistered),
		errors.Is(err, service.ErrCandidateExists),
		errors.Is(err, ledger.ErrNothingToSeal):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrFraudRejected),
		errors.Is(err, service.ErrSessionClosed):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrReceiptNotFound),
		errors.Is(err, registry.ErrVoterNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownCandidate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
