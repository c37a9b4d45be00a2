package service

import (
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/book"
	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/metrics"
	"github.com/eaglecoth/matching-engine/infra/sequence"
)

// Config carries the engine-level knobs.
type Config struct {
	// QueueDepth is the capacity of every instruction queue and of the
	// execution stream.
	QueueDepth int
}

const DefaultQueueDepth = 1 << 14

// MatchingService wires the full engine: the shared pools and order-id
// sequencer, one processor per instrument-side, and the distributor in
// front of them. It is the only write entry point; everything downstream
// consumes the execution stream.
type MatchingService struct {
	dist       *book.Distributor
	processors []*book.Processor
	pools      book.Pools
	execs      chan *market.Execution
	log        *zap.Logger
}

func New(cfg Config, m *metrics.Metrics, log *zap.Logger) *MatchingService {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	pools := book.NewPools()
	ids := sequence.New(0)
	execs := make(chan *market.Execution, cfg.QueueDepth)
	dist := book.NewDistributor(cfg.QueueDepth, pools.Instructions, m, log)

	s := &MatchingService{
		dist:  dist,
		pools: pools,
		execs: execs,
		log:   log,
	}

	pairs := []market.Pair{market.BTCUSD, market.ETHUSD}
	sides := []market.Side{market.Bid, market.Offer}
	for _, pair := range pairs {
		for _, side := range sides {
			p := book.NewProcessor(pair, side, cfg.QueueDepth, pools, execs, ids, log)
			dist.Register(pair, side, p.Queue())
			s.processors = append(s.processors, p)
		}
	}
	return s
}

// Start launches the distributor and all book-side processors.
func (s *MatchingService) Start() {
	s.dist.Start()
	for _, p := range s.processors {
		p.Start()
	}
}

// Shutdown cooperatively stops every actor. Instructions still enqueued
// are abandoned, per the shutdown contract.
func (s *MatchingService) Shutdown() {
	s.dist.Shutdown()
	for _, p := range s.processors {
		p.Shutdown()
	}
	s.log.Info("matching service stopped")
}

// AcquireInstruction hands the caller a pooled, zeroed instruction to
// populate before submission.
func (s *MatchingService) AcquireInstruction() *market.Instruction {
	return s.pools.Instructions.Acquire()
}

// ReleaseInstruction recycles an instruction that will not be submitted.
func (s *MatchingService) ReleaseInstruction(m *market.Instruction) {
	s.pools.Instructions.Return(m)
}

// TrySubmit enqueues an instruction without blocking. It reports false when
// the inbound queue is full; retry policy is the submitter's concern.
func (s *MatchingService) TrySubmit(m *market.Instruction) bool {
	select {
	case s.dist.Queue() <- m:
		return true
	default:
		return false
	}
}

// Executions is the outbound report stream. Consumers must recycle each
// report via ReleaseExecution once done with it.
func (s *MatchingService) Executions() <-chan *market.Execution {
	return s.execs
}

func (s *MatchingService) ReleaseExecution(e *market.Execution) {
	s.pools.Executions.Return(e)
}
