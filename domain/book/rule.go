package book

import "github.com/eaglecoth/matching-engine/domain/market"

// Rule is the side-specific strategy value a processor is parameterised
// with. Bid and offer books share one concrete Processor and Book type;
// everything that differs between the sides funnels through here.
//
// Because chain links are stored relative to the side (better/worse rather
// than higher/lower), the only genuinely side-dependent decision left is
// which of two prices is better.
type Rule struct {
	side market.Side
}

func RuleFor(side market.Side) Rule { return Rule{side: side} }

// Side is the side this book holds; Opposite is the side reported on
// executions granted to the aggressor.
func (r Rule) Side() market.Side     { return r.side }
func (r Rule) Opposite() market.Side { return r.side.Opposite() }

// Better reports whether price a is better than price b for this side:
// higher for a bid book, lower for an offer book.
func (r Rule) Better(a, b int64) bool {
	if r.side == market.Bid {
		return a > b
	}
	return a < b
}
