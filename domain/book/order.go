package book

import "github.com/eaglecoth/matching-engine/domain/market"

// Order is one resident instruction's remaining quantity at a price. It is
// an intrusive FIFO node: the prev/next links place it in exactly one
// PriceLevel's list at a time. Instances are pooled; Reset clears every
// field so a recycled order cannot drag stale links into a live list.
type Order struct {
	ID            uint64
	ClientID      uint64
	ClientOrderID uint64
	Pair          market.Pair
	Side          market.Side
	Size          int64

	level *PriceLevel
	// prev points toward the inside of the book (older), next toward the
	// outside (younger).
	prev, next *Order
}

func (o *Order) Reset() { *o = Order{} }

func (o *Order) populate(id uint64, m *market.Instruction, lvl *PriceLevel) {
	o.ID = id
	o.ClientID = m.ClientID
	o.ClientOrderID = m.ClientOrderID
	o.Pair = m.Pair
	o.Side = m.Side
	o.Size = m.Quantity
	o.level = lvl
	o.prev = nil
	o.next = nil
}

// Level returns the price level this order currently rests on.
func (o *Order) Level() *PriceLevel { return o.level }
