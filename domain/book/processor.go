package book

import (
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/sequence"
)

// Processor owns one book (one instrument, one side) and runs as a
// single-goroutine actor: it consumes its inbound instruction queue and
// applies each instruction synchronously against the book it exclusively
// owns. No other goroutine ever reads or writes that book; all cross-actor
// traffic goes through the channels.
type Processor struct {
	pair market.Pair
	rule Rule
	book *Book

	in  chan *market.Instruction
	out chan<- *market.Execution

	ids   *sequence.Sequencer
	pools Pools

	log     *zap.Logger
	stop    chan struct{}
	stopped chan struct{}
}

func NewProcessor(
	pair market.Pair,
	side market.Side,
	queueDepth int,
	pools Pools,
	out chan<- *market.Execution,
	ids *sequence.Sequencer,
	log *zap.Logger,
) *Processor {
	rule := RuleFor(side)
	return &Processor{
		pair:    pair,
		rule:    rule,
		book:    NewBook(rule, pools.Levels),
		in:      make(chan *market.Instruction, queueDepth),
		out:     out,
		ids:     ids,
		pools:   pools,
		log:     log.With(zap.Stringer("pair", pair), zap.Stringer("side", side)),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Queue is the processor's inbound instruction queue. Multiple producers
// may enqueue; only the processor goroutine consumes.
func (p *Processor) Queue() chan<- *market.Instruction { return p.in }

// Book exposes the owned book for same-goroutine inspection in tests.
func (p *Processor) Book() *Book { return p.book }

// Start launches the processing loop.
func (p *Processor) Start() {
	go p.run()
}

// Shutdown requests cooperative termination and waits for the loop to
// observe it. Instructions still enqueued are abandoned.
func (p *Processor) Shutdown() {
	close(p.stop)
	<-p.stopped
}

func (p *Processor) run() {
	defer close(p.stopped)
	p.log.Info("book-side processor started")
	for {
		select {
		case <-p.stop:
			p.log.Info("book-side processor shutting down")
			return
		case m := <-p.in:
			p.process(m)
		}
	}
}

func (p *Processor) process(m *market.Instruction) {
	switch m.Kind {
	case market.NewLimitOrder:
		p.insertLimit(m)
	case market.NewMarketOrder:
		p.executeMarket(m)
	case market.CancelOrder:
		p.cancel(m)
	case market.CancelAllOrders:
		p.cancelAll(m)
	}
	p.pools.Instructions.Return(m)
}

// insertLimit places a new resting order at its stated price. No crossing
// check is performed: a marketable limit still rests, and only the market
// path consumes opposite-side liquidity.
func (p *Processor) insertLimit(m *market.Instruction) {
	lvl := p.book.LevelFor(m.Price)

	o := p.pools.Orders.Acquire()
	o.populate(p.ids.Next(), m, lvl)
	lvl.AddOrder(o)
	p.book.IndexOrder(o)

	p.publish(market.OrderAccepted, o.ClientID, o.ClientOrderID, o.ID, lvl.Price(), o.Size, p.rule.Side())
}

// executeMarket walks the book from the top of book, best price first and
// oldest order first within a price, until the requested quantity is
// filled or liquidity dries up. The walk never revisits an exhausted
// level; any unfilled remainder is rejected back to the aggressor.
func (p *Processor) executeMarket(m *market.Instruction) {
	if p.book.Top() == nil {
		p.publish(market.Reject, m.ClientID, m.ClientOrderID, 0, 0, m.Quantity, p.rule.Opposite())
		return
	}

	remaining := m.Quantity
	for {
		lvl := p.book.Top()
		resting := lvl.PeekHead()

		if resting.Size > remaining {
			// Resting order survives: full fill for the aggressor,
			// partial fill for the resting client.
			resting.Size -= remaining
			p.publish(market.Fill, m.ClientID, m.ClientOrderID, 0, lvl.Price(), remaining, p.rule.Opposite())
			p.publish(market.PartialFill, resting.ClientID, resting.ClientOrderID, resting.ID, lvl.Price(), remaining, p.rule.Side())
			return
		}

		// Resting order is consumed entirely.
		filled := resting.Size
		lvl.PollHead()
		p.book.UnindexOrder(resting)

		aggressorType := market.PartialFill
		if filled == remaining {
			aggressorType = market.Fill
		}
		p.publish(aggressorType, m.ClientID, m.ClientOrderID, 0, lvl.Price(), filled, p.rule.Opposite())
		p.publish(market.Fill, resting.ClientID, resting.ClientOrderID, resting.ID, lvl.Price(), filled, p.rule.Side())
		p.pools.Orders.Return(resting)

		remaining -= filled
		if lvl.Empty() {
			p.book.RemoveLevel(lvl)
		}
		if remaining == 0 {
			return
		}
		if p.book.Top() == nil {
			p.log.Debug("book dried up with quantity remaining", zap.Int64("remaining", remaining))
			p.publish(market.Reject, m.ClientID, m.ClientOrderID, 0, 0, remaining, p.rule.Opposite())
			return
		}
	}
}

// cancel removes one resident order by id. An unknown id means the order
// was already filled or cancelled; that is a no-op, not an error.
func (p *Processor) cancel(m *market.Instruction) {
	o, ok := p.book.Lookup(m.OrderID)
	if !ok {
		return
	}
	p.removeResident(o)
}

// cancelAll removes every order resident for one client in this book-side.
// Orders the client holds in other books are handled by the copies of the
// instruction routed there.
func (p *Processor) cancelAll(m *market.Instruction) {
	set := p.book.TakeClientOrders(m.ClientID)
	for _, o := range set {
		p.removeResident(o)
	}
}

func (p *Processor) removeResident(o *Order) {
	p.book.UnindexOrder(o)
	lvl := o.Level()
	lvl.Detach(o)
	if lvl.Empty() {
		p.book.RemoveLevel(lvl)
	}
	p.publish(market.CancelAccepted, o.ClientID, o.ClientOrderID, o.ID, 0, 0, o.Side)
	p.pools.Orders.Return(o)
}

func (p *Processor) publish(t market.ExecType, clientID, clientOrderID, orderID uint64, price, qty int64, side market.Side) {
	e := p.pools.Executions.Acquire()
	e.Type = t
	e.Pair = p.pair
	e.Side = side
	e.ClientID = clientID
	e.ClientOrderID = clientOrderID
	e.OrderID = orderID
	e.Price = price
	e.Quantity = qty
	p.out <- e
}
