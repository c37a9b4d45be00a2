package book

import (
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/memory"
	"github.com/eaglecoth/matching-engine/infra/metrics"
)

type routeKey struct {
	pair market.Pair
	side market.Side
}

// Distributor is the routing actor in front of the book-side processors.
// It inspects each inbound instruction and forwards it to the queue of the
// book that must handle it; cancellations, whose owning book is unknown,
// are fanned out as fresh pool-owned copies to every registered queue. The
// distributor never touches book state.
type Distributor struct {
	in     chan *market.Instruction
	routes map[routeKey]chan<- *market.Instruction
	fanout []chan<- *market.Instruction

	instructions *memory.Pool[market.Instruction]
	metrics      *metrics.Metrics

	log     *zap.Logger
	stop    chan struct{}
	stopped chan struct{}
}

func NewDistributor(
	queueDepth int,
	instructions *memory.Pool[market.Instruction],
	m *metrics.Metrics,
	log *zap.Logger,
) *Distributor {
	return &Distributor{
		in:           make(chan *market.Instruction, queueDepth),
		routes:       make(map[routeKey]chan<- *market.Instruction),
		instructions: instructions,
		metrics:      m,
		log:          log.Named("distributor"),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Register wires the queue of the (pair, side) book. Must be called for
// every active book before Start.
func (d *Distributor) Register(pair market.Pair, side market.Side, q chan<- *market.Instruction) {
	d.routes[routeKey{pair: pair, side: side}] = q
	d.fanout = append(d.fanout, q)
}

// Queue is the distributor's inbound queue, the single entry point for all
// instruction producers.
func (d *Distributor) Queue() chan<- *market.Instruction { return d.in }

func (d *Distributor) Start() {
	go d.run()
}

// Shutdown requests cooperative termination and waits for the routing loop
// to exit. Instructions still enqueued are abandoned.
func (d *Distributor) Shutdown() {
	close(d.stop)
	<-d.stopped
}

func (d *Distributor) run() {
	defer close(d.stopped)
	d.log.Info("distributor started")
	for {
		select {
		case <-d.stop:
			d.log.Info("distributor shutting down")
			return
		case m := <-d.in:
			d.route(m)
		}
	}
}

func (d *Distributor) route(m *market.Instruction) {
	switch m.Kind {
	case market.NewLimitOrder:
		d.forward(m, routeKey{pair: m.Pair, side: m.Side})

	case market.NewMarketOrder:
		// A market order consumes the opposite book: a market OFFER
		// executes against resident bids.
		d.forward(m, routeKey{pair: m.Pair, side: m.Side.Opposite()})

	case market.CancelOrder, market.CancelAllOrders:
		// No global order registry: every book gets its own copy and
		// decides locally whether it holds the target.
		for _, q := range d.fanout {
			copied := d.instructions.Acquire()
			*copied = *m
			q <- copied
		}
		d.metrics.InstructionsRouted.WithLabelValues(m.Kind.String()).Inc()
		d.instructions.Return(m)

	default:
		d.drop(m)
	}
}

func (d *Distributor) forward(m *market.Instruction, key routeKey) {
	q, ok := d.routes[key]
	if !ok {
		d.drop(m)
		return
	}
	d.metrics.InstructionsRouted.WithLabelValues(m.Kind.String()).Inc()
	q <- m
}

func (d *Distributor) drop(m *market.Instruction) {
	d.log.Warn("unroutable instruction dropped",
		zap.Stringer("kind", m.Kind),
		zap.Stringer("pair", m.Pair),
		zap.Stringer("side", m.Side))
	d.metrics.InstructionsDropped.Inc()
	d.instructions.Return(m)
}
