package service

import (
	"sync"

	"github.com/rs/zerolog"
)

// QueueProcessor serializes registrations and votes submitted by concurrent
// callers through worker goroutines, so API handlers never block on mining.
type QueueProcessor struct {
	election       *ElectionService
	registrationCh chan *RegistrationRequest
	voteCh         chan *VoteRequest
	processingWg   sync.WaitGroup
	shutdownCh     chan struct{}
	log            zerolog.Logger
}

// RegistrationRequest is a queued voter registration.
type RegistrationRequest struct {
	VoterID  string
	Name     string
	Email    string
	Domain   string
	ResultCh chan<- *ProcessingResult
}

// VoteRequest is a queued vote submission.
type VoteRequest struct {
	VoterID     string
	CandidateID string
	ResultCh    chan<- *ProcessingResult
}

// ProcessingResult reports the outcome of an asynchronous operation.
type ProcessingResult struct {
	Success      bool
	VoterID      string
	ReceiptID    string
	ErrorMessage string
}

func NewQueueProcessor(election *ElectionService, queueSize int, log zerolog.Logger) *QueueProcessor {
	return &QueueProcessor{
		election:       election,
		registrationCh: make(chan *RegistrationRequest, queueSize),
		voteCh:         make(chan *VoteRequest, queueSize),
		shutdownCh:     make(chan struct{}),
		log:            log.With().Str("component", "queue").Logger(),
	}
}

// Start launches one worker per request kind. Vote processing stays
// single-threaded, which keeps all ledger mutation on one logical path.
func (qp *QueueProcessor) Start() {
	qp.processingWg.Add(1)
	go qp.registrationWorker()

	qp.processingWg.Add(1)
	go qp.voteWorker()
}

// Stop shuts the workers down and waits for in-flight requests.
func (qp *QueueProcessor) Stop() {
	close(qp.shutdownCh)
	qp.processingWg.Wait()
}

// QueueRegistration enqueues a registration; a full queue fails fast.
func (qp *QueueProcessor) QueueRegistration(req RegistrationRequest) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	req.ResultCh = resultCh
	select {
	case qp.registrationCh <- &req:
	default:
		resultCh <- &ProcessingResult{Success: false, ErrorMessage: "registration queue is full"}
		close(resultCh)
	}
	return resultCh
}

// QueueVote enqueues a vote; a full queue fails fast.
func (qp *QueueProcessor) QueueVote(voterID, candidateID string) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.voteCh <- &VoteRequest{VoterID: voterID, CandidateID: candidateID, ResultCh: resultCh}:
	default:
		resultCh <- &ProcessingResult{Success: false, ErrorMessage: "vote queue is full"}
		close(resultCh)
	}
	return resultCh
}

func (qp *QueueProcessor) registrationWorker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			return
		case req := <-qp.registrationCh:
			voter, err := qp.election.RegisterVoter(req.VoterID, req.Name, req.Email, req.Domain)
			if err != nil {
				req.ResultCh <- &ProcessingResult{Success: false, ErrorMessage: err.Error()}
			} else {
				req.ResultCh <- &ProcessingResult{Success: true, VoterID: voter.VoterID}
			}
			close(req.ResultCh)
		}
	}
}

func (qp *QueueProcessor) voteWorker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			return
		case req := <-qp.voteCh:
			receipt, err := qp.election.CastVote(req.VoterID, req.CandidateID)
			if err != nil {
				qp.log.Debug().Err(err).Str("voter", req.VoterID).Msg("queued vote rejected")
				req.ResultCh <- &ProcessingResult{Success: false, VoterID: req.VoterID, ErrorMessage: err.Error()}
			} else {
				req.ResultCh <- &ProcessingResult{Success: true, VoterID: req.VoterID, ReceiptID: receipt}
			}
			close(req.ResultCh)
		}
	}
}
