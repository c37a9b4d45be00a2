package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/sequence"
)

// harness drives one processor synchronously, without its goroutine, so the
// book can be inspected between instructions.
type harness struct {
	t     *testing.T
	p     *Processor
	pools Pools
	out   chan *market.Execution
}

func newHarness(t *testing.T, pair market.Pair, side market.Side) *harness {
	pools := NewPools()
	out := make(chan *market.Execution, 256)
	p := NewProcessor(pair, side, 16, pools, out, sequence.New(0), zap.NewNop())
	return &harness{t: t, p: p, pools: pools, out: out}
}

func (h *harness) limit(clientID, clientOrderID uint64, qty, price int64) {
	m := h.pools.Instructions.Acquire()
	m.Kind = market.NewLimitOrder
	m.Pair = h.p.pair
	m.Side = h.p.rule.Side()
	m.ClientID = clientID
	m.ClientOrderID = clientOrderID
	m.Quantity = qty
	m.Price = price
	h.p.process(m)
}

func (h *harness) marketOrder(clientID, clientOrderID uint64, qty int64) {
	m := h.pools.Instructions.Acquire()
	m.Kind = market.NewMarketOrder
	m.Pair = h.p.pair
	m.Side = h.p.rule.Opposite()
	m.ClientID = clientID
	m.ClientOrderID = clientOrderID
	m.Quantity = qty
	h.p.process(m)
}

func (h *harness) cancel(clientID, orderID uint64) {
	m := h.pools.Instructions.Acquire()
	m.Kind = market.CancelOrder
	m.ClientID = clientID
	m.OrderID = orderID
	h.p.process(m)
}

func (h *harness) cancelAll(clientID uint64) {
	m := h.pools.Instructions.Acquire()
	m.Kind = market.CancelAllOrders
	m.ClientID = clientID
	h.p.process(m)
}

func (h *harness) next() *market.Execution {
	select {
	case e := <-h.out:
		return e
	default:
		h.t.Fatal("expected an execution report, stream is empty")
		return nil
	}
}

func (h *harness) expectEmpty() {
	select {
	case e := <-h.out:
		h.t.Fatalf("unexpected execution report: %s", e.Type)
	default:
	}
}

// accept drains the ACCEPTED report of the last limit insert and returns the
// assigned order id.
func (h *harness) accept() uint64 {
	e := h.next()
	require.Equal(h.t, market.OrderAccepted, e.Type)
	return e.OrderID
}

func TestLimitInsertPublishesAccepted(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 100)

	e := h.next()
	assert.Equal(t, market.OrderAccepted, e.Type)
	assert.Equal(t, market.BTCUSD, e.Pair)
	assert.Equal(t, market.Bid, e.Side)
	assert.Equal(t, uint64(1), e.ClientID)
	assert.Equal(t, uint64(11), e.ClientOrderID)
	assert.NotZero(t, e.OrderID)
	assert.Equal(t, int64(100), e.Price)
	assert.Equal(t, int64(50), e.Quantity)
	h.expectEmpty()

	assert.Equal(t, 1, h.p.Book().Depth())
}

func TestMarketAgainstEmptyBookRejects(t *testing.T) {
	h := newHarness(t, market.ETHUSD, market.Offer)
	h.marketOrder(9, 91, 40)

	e := h.next()
	assert.Equal(t, market.Reject, e.Type)
	assert.Equal(t, uint64(9), e.ClientID)
	assert.Equal(t, int64(40), e.Quantity)
	// A market order against the offer book belongs to a bid aggressor.
	assert.Equal(t, market.Bid, e.Side)
	h.expectEmpty()
}

func TestMarketFilledByLargerRestingOrder(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 100, 100)
	restingID := h.accept()

	h.marketOrder(2, 21, 30)

	aggressor := h.next()
	assert.Equal(t, market.Fill, aggressor.Type)
	assert.Equal(t, uint64(2), aggressor.ClientID)
	assert.Equal(t, int64(30), aggressor.Quantity)
	assert.Equal(t, int64(100), aggressor.Price)
	assert.Equal(t, market.Offer, aggressor.Side)

	resting := h.next()
	assert.Equal(t, market.PartialFill, resting.Type)
	assert.Equal(t, uint64(1), resting.ClientID)
	assert.Equal(t, restingID, resting.OrderID)
	assert.Equal(t, int64(30), resting.Quantity)
	h.expectEmpty()

	// Remaining 70 still resident at the same priority.
	assert.Equal(t, int64(70), h.p.Book().Top().PeekHead().Size)
}

func TestMarketConsumesRestingOrderExactly(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 100)
	restingID := h.accept()

	h.marketOrder(2, 21, 50)

	aggressor := h.next()
	assert.Equal(t, market.Fill, aggressor.Type)
	assert.Equal(t, int64(50), aggressor.Quantity)

	resting := h.next()
	assert.Equal(t, market.Fill, resting.Type)
	assert.Equal(t, restingID, resting.OrderID)
	assert.Equal(t, int64(50), resting.Quantity)
	h.expectEmpty()

	assert.Nil(t, h.p.Book().Top())
	assert.Zero(t, h.p.Book().Depth())
}

func TestMarketWalksPriceTimePriority(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 30, 100) // second-best price
	first := h.accept()
	h.limit(2, 21, 30, 105) // best price, filled first
	second := h.accept()
	h.limit(3, 31, 30, 105) // same price, younger, filled after
	third := h.accept()

	h.marketOrder(4, 41, 70)

	// Round 1: best price, oldest order at it.
	a1 := h.next()
	assert.Equal(t, market.PartialFill, a1.Type)
	assert.Equal(t, int64(105), a1.Price)
	r1 := h.next()
	assert.Equal(t, market.Fill, r1.Type)
	assert.Equal(t, second, r1.OrderID)

	// Round 2: same price, next oldest.
	a2 := h.next()
	assert.Equal(t, market.PartialFill, a2.Type)
	r2 := h.next()
	assert.Equal(t, market.Fill, r2.Type)
	assert.Equal(t, third, r2.OrderID)

	// Round 3: price falls to 100 for the final 10.
	a3 := h.next()
	assert.Equal(t, market.Fill, a3.Type)
	assert.Equal(t, int64(100), a3.Price)
	assert.Equal(t, int64(10), a3.Quantity)
	r3 := h.next()
	assert.Equal(t, market.PartialFill, r3.Type)
	assert.Equal(t, first, r3.OrderID)
	assert.Equal(t, int64(10), r3.Quantity)
	h.expectEmpty()

	// 20 remain on the 100 level, which is now the top of book.
	assert.Equal(t, int64(100), h.p.Book().Top().Price())
	assert.Equal(t, int64(20), h.p.Book().Top().PeekHead().Size)
}

func TestMarketExhaustsBookAndRejectsRemainder(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Offer)
	h.limit(1, 11, 25, 100)
	h.accept()

	h.marketOrder(2, 21, 60)

	aggressor := h.next()
	assert.Equal(t, market.PartialFill, aggressor.Type)
	assert.Equal(t, int64(25), aggressor.Quantity)

	resting := h.next()
	assert.Equal(t, market.Fill, resting.Type)

	reject := h.next()
	assert.Equal(t, market.Reject, reject.Type)
	assert.Equal(t, uint64(2), reject.ClientID)
	assert.Equal(t, int64(35), reject.Quantity)
	h.expectEmpty()

	assert.Nil(t, h.p.Book().Top())
}

func TestQuantityConservation(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	sizes := []int64{40, 25, 35}
	for i, size := range sizes {
		h.limit(uint64(i+1), uint64(10*(i+1)), size, int64(100+i))
		h.accept()
	}

	const requested = 90
	h.marketOrder(9, 99, requested)

	var aggressorFilled, restingFilled, rejected int64
	for {
		select {
		case e := <-h.out:
			switch {
			case e.ClientID == 9 && e.Type == market.Reject:
				rejected += e.Quantity
			case e.ClientID == 9:
				aggressorFilled += e.Quantity
			default:
				restingFilled += e.Quantity
			}
		default:
			assert.Equal(t, aggressorFilled, restingFilled)
			assert.Equal(t, int64(requested), aggressorFilled+rejected)
			return
		}
	}
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 100)
	id := h.accept()

	h.cancel(1, id)

	e := h.next()
	assert.Equal(t, market.CancelAccepted, e.Type)
	assert.Equal(t, uint64(1), e.ClientID)
	assert.Equal(t, id, e.OrderID)
	h.expectEmpty()

	assert.Nil(t, h.p.Book().Top())
	_, ok := h.p.Book().Lookup(id)
	assert.False(t, ok)
}

func TestCancelUnknownOrderIsSilent(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.cancel(1, 999)
	h.expectEmpty()
}

func TestCancelledOrderCannotMatch(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 105)
	best := h.accept()
	h.limit(2, 21, 50, 100)
	h.accept()

	h.cancel(1, best)
	require.Equal(t, market.CancelAccepted, h.next().Type)

	h.marketOrder(3, 31, 20)

	aggressor := h.next()
	assert.Equal(t, market.Fill, aggressor.Type)
	// Match lands on the surviving 100 level, not the cancelled 105.
	assert.Equal(t, int64(100), aggressor.Price)
	resting := h.next()
	assert.Equal(t, uint64(2), resting.ClientID)
}

func TestCancelAllRemovesOnlyThatClient(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 100)
	h.accept()
	h.limit(1, 12, 50, 101)
	h.accept()
	h.limit(2, 21, 50, 102)
	other := h.accept()

	h.cancelAll(1)

	for i := 0; i < 2; i++ {
		e := h.next()
		assert.Equal(t, market.CancelAccepted, e.Type)
		assert.Equal(t, uint64(1), e.ClientID)
	}
	h.expectEmpty()

	assert.Equal(t, 1, h.p.Book().Depth())
	_, ok := h.p.Book().Lookup(other)
	assert.True(t, ok)
}

func TestCancelAllWithNothingResidentIsSilent(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Offer)
	h.cancelAll(42)
	h.expectEmpty()
}

func TestMarketableLimitStillRests(t *testing.T) {
	h := newHarness(t, market.BTCUSD, market.Bid)
	h.limit(1, 11, 50, 100)
	h.accept()

	// Limit insertion never triggers matching; both orders rest.
	h.limit(2, 21, 50, 110)
	h.accept()
	h.expectEmpty()

	assert.Equal(t, 2, h.p.Book().Depth())
	assert.Equal(t, int64(110), h.p.Book().Top().Price())
}
