package market

// Wire tokens understood by the feed deserializer.
const (
	TokenNewMarketOrder = "NEW"
	TokenNewLimitOrder  = "LIMIT"
	TokenCancelOrder    = "CANCEL"
	TokenCancelAll      = "CANCELALL"
	TokenBTCUSD         = "BTCUSD"
	TokenETHUSD         = "ETHUSD"
	TokenBid            = "BID"
	TokenOffer          = "OFFER"

	DefaultDelimiter = ";"
)

type Pair uint8

const (
	BTCUSD Pair = iota
	ETHUSD

	PairCount = 2
)

func (p Pair) String() string {
	switch p {
	case BTCUSD:
		return TokenBTCUSD
	case ETHUSD:
		return TokenETHUSD
	default:
		return "UNKNOWN"
	}
}

// ParsePair maps a wire token to a pair. ok is false for any
// instrument the engine does not trade.
func ParsePair(s string) (Pair, bool) {
	switch s {
	case TokenBTCUSD:
		return BTCUSD, true
	case TokenETHUSD:
		return ETHUSD, true
	default:
		return 0, false
	}
}

type Side uint8

const (
	Bid Side = iota
	Offer
)

func (s Side) String() string {
	if s == Bid {
		return TokenBid
	}
	return TokenOffer
}

func (s Side) Opposite() Side {
	if s == Bid {
		return Offer
	}
	return Bid
}

func ParseSide(s string) (Side, bool) {
	switch s {
	case TokenBid:
		return Bid, true
	case TokenOffer:
		return Offer, true
	default:
		return 0, false
	}
}

// Kind discriminates inbound instructions.
type Kind uint8

const (
	NewLimitOrder Kind = iota
	NewMarketOrder
	CancelOrder
	CancelAllOrders
)

func (k Kind) String() string {
	switch k {
	case NewLimitOrder:
		return TokenNewLimitOrder
	case NewMarketOrder:
		return TokenNewMarketOrder
	case CancelOrder:
		return TokenCancelOrder
	case CancelAllOrders:
		return TokenCancelAll
	default:
		return "UNKNOWN"
	}
}

// ExecType discriminates outbound execution reports.
type ExecType uint8

const (
	OrderAccepted ExecType = iota
	Fill
	PartialFill
	CancelAccepted
	Reject
)

func (t ExecType) String() string {
	switch t {
	case OrderAccepted:
		return "ACCEPTED"
	case Fill:
		return "FILL"
	case PartialFill:
		return "PARTIAL_FILL"
	case CancelAccepted:
		return "CANCEL_ACCEPTED"
	case Reject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// Instruction is one inbound request to the engine. Instances are pooled:
// the processor that finishes handling an instruction recycles it.
type Instruction struct {
	Kind          Kind
	Pair          Pair
	Side          Side
	ClientID      uint64
	ClientOrderID uint64
	OrderID       uint64
	Price         int64
	Quantity      int64
}

func (m *Instruction) Reset() { *m = Instruction{} }

// Execution is one outbound report. Immutable once published; created and
// recycled per report via the pool.
type Execution struct {
	Type          ExecType
	Pair          Pair
	Side          Side
	ClientID      uint64
	ClientOrderID uint64
	OrderID       uint64
	Price         int64
	Quantity      int64
}

func (e *Execution) Reset() { *e = Execution{} }
