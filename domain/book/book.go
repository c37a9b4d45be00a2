package book

import (
	"github.com/tidwall/btree"

	"github.com/eaglecoth/matching-engine/infra/memory"
)

// Book is one instrument-side's state: a sorted price index layered under a
// doubly linked chain of price levels, a cached top-of-book pointer, and
// the order/client lookup tables used by cancellation. A Book is owned
// exclusively by one processor goroutine and carries no synchronization.
type Book struct {
	rule   Rule
	levels *memory.Pool[PriceLevel]

	index *btree.Map[int64, *PriceLevel]
	top   *PriceLevel

	orders       map[uint64]*Order
	clientOrders map[uint64]map[uint64]*Order
}

func NewBook(rule Rule, levels *memory.Pool[PriceLevel]) *Book {
	return &Book{
		rule:         rule,
		levels:       levels,
		index:        btree.NewMap[int64, *PriceLevel](32),
		orders:       make(map[uint64]*Order),
		clientOrders: make(map[uint64]map[uint64]*Order),
	}
}

// Top is the best resident price level, nil iff the book-side is empty.
func (b *Book) Top() *PriceLevel { return b.top }

// Depth is the number of distinct resident prices.
func (b *Book) Depth() int { return b.index.Len() }

// LevelFor returns the price level at price, creating, splicing and
// re-evaluating top-of-book when the price was previously absent. Index
// lookup/insert is O(log n) on distinct prices.
func (b *Book) LevelFor(price int64) *PriceLevel {
	if lvl, ok := b.index.Get(price); ok {
		return lvl
	}
	lvl := b.levels.Acquire()
	lvl.populate(price)
	b.index.Set(price, lvl)

	if b.top == nil {
		b.top = lvl
		return lvl
	}
	b.spliceIntoChain(lvl)
	if b.rule.Better(lvl.price, b.top.price) {
		b.top = lvl
	}
	return lvl
}

// spliceIntoChain walks from the top of book toward worse prices and links
// the new level where it fits.
func (b *Book) spliceIntoChain(lvl *PriceLevel) {
	cur := b.top
	for {
		if b.rule.Better(lvl.price, cur.price) {
			lvl.better = cur.better
			lvl.worse = cur
			if cur.better != nil {
				cur.better.worse = lvl
			}
			cur.better = lvl
			return
		}
		if cur.worse == nil {
			cur.worse = lvl
			lvl.better = cur
			return
		}
		cur = cur.worse
	}
}

// RemoveLevel drops an empty level from the index and chain, advancing the
// top-of-book pointer when the level was the best, and recycles it.
func (b *Book) RemoveLevel(lvl *PriceLevel) {
	b.index.Delete(lvl.price)
	if b.top == lvl {
		b.top = lvl.worse
	}
	lvl.UnlinkFromChain()
	b.levels.Return(lvl)
}

// IndexOrder registers a freshly inserted order for cancel and cancel-all.
func (b *Book) IndexOrder(o *Order) {
	b.orders[o.ID] = o
	set := b.clientOrders[o.ClientID]
	if set == nil {
		set = make(map[uint64]*Order)
		b.clientOrders[o.ClientID] = set
	}
	set[o.ID] = o
}

// Lookup returns the resident order with the given id, if any.
func (b *Book) Lookup(id uint64) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// UnindexOrder removes an order from both lookup tables, dropping the
// client's set once it empties.
func (b *Book) UnindexOrder(o *Order) {
	delete(b.orders, o.ID)
	if set, ok := b.clientOrders[o.ClientID]; ok {
		delete(set, o.ID)
		if len(set) == 0 {
			delete(b.clientOrders, o.ClientID)
		}
	}
}

// TakeClientOrders removes and returns the client's entire open-order set;
// nil when the client has nothing resident here.
func (b *Book) TakeClientOrders(clientID uint64) map[uint64]*Order {
	set := b.clientOrders[clientID]
	if set != nil {
		delete(b.clientOrders, clientID)
	}
	return set
}
