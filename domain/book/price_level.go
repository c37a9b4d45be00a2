package book

// PriceLevel holds all resident orders at one price within one book-side:
// a FIFO list (head = next to match, tail = most recently arrived) plus the
// level's position in the book's price chain. Chain links are relative to
// the owning side: better is toward the top of book, worse away from it.
//
// All operations assume the caller has verified applicability; none of them
// touch anything beyond the structures the level owns.
type PriceLevel struct {
	price int64

	head, tail *Order

	better, worse *PriceLevel
}

func (l *PriceLevel) Reset() { *l = PriceLevel{} }

func (l *PriceLevel) populate(price int64) {
	l.price = price
	l.head = nil
	l.tail = nil
	l.better = nil
	l.worse = nil
}

func (l *PriceLevel) Price() int64 { return l.price }

func (l *PriceLevel) Empty() bool { return l.head == nil }

// AddOrder appends o to the FIFO tail in O(1).
func (l *PriceLevel) AddOrder(o *Order) {
	o.level = l
	o.next = nil
	if l.head == nil {
		o.prev = nil
		l.head = o
		l.tail = o
		return
	}
	o.prev = l.tail
	l.tail.next = o
	l.tail = o
}

// PeekHead returns the oldest resident order without removing it.
func (l *PriceLevel) PeekHead() *Order { return l.head }

// PollHead removes and returns the oldest order, relinking the new head.
func (l *PriceLevel) PollHead() *Order {
	o := l.head
	l.head = o.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	o.prev = nil
	o.next = nil
	return o
}

// Detach unlinks an arbitrary order from the FIFO list in O(1) using only
// the order's own links. Covers all four positions: sole resident, head,
// tail, interior.
func (l *PriceLevel) Detach(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.prev = nil
	o.next = nil
}

// UnlinkFromChain removes this now-empty level from the price chain,
// relinking its neighbors. Reports whether it was the only level left.
func (l *PriceLevel) UnlinkFromChain() bool {
	wasLast := l.better == nil && l.worse == nil
	if l.better != nil {
		l.better.worse = l.worse
	}
	if l.worse != nil {
		l.worse.better = l.better
	}
	l.better = nil
	l.worse = nil
	return wasLast
}

// Better and Worse expose the chain neighbors for the matching walk.
func (l *PriceLevel) Better() *PriceLevel { return l.better }
func (l *PriceLevel) Worse() *PriceLevel  { return l.worse }
