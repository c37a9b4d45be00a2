package feed

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/market"
)

// Sink is what the serializer submits into: the matching service, or a test
// double.
type Sink interface {
	AcquireInstruction() *market.Instruction
	ReleaseInstruction(*market.Instruction)
	TrySubmit(*market.Instruction) bool
}

// Config holds the wire-format and backpressure knobs of the submission
// boundary.
type Config struct {
	// Delimiter separates wire tokens; a single character.
	Delimiter string
	// RetryCount bounds re-submission attempts when the engine queue is
	// full; between attempts the serializer sleeps RetrySleep.
	RetryCount int
	RetrySleep time.Duration
	// DefaultMarketQty is the quantity applied to NEW instructions that
	// omit the optional trailing quantity token.
	DefaultMarketQty int64
}

const (
	DefaultRetryCount     = 3
	DefaultRetrySleep     = 100 * time.Millisecond
	DefaultMarketQuantity = 100
)

// Serializer turns delimiter-separated instruction strings into typed,
// pool-owned instructions and submits them to the engine. Malformed or
// unsupported input never reaches the engine; the acquired instruction is
// recycled and the line dropped.
type Serializer struct {
	sink Sink
	cfg  Config
	log  *zap.Logger
}

func NewSerializer(sink Sink, cfg Config, log *zap.Logger) *Serializer {
	if cfg.Delimiter == "" {
		cfg.Delimiter = market.DefaultDelimiter
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.RetrySleep <= 0 {
		cfg.RetrySleep = DefaultRetrySleep
	}
	if cfg.DefaultMarketQty <= 0 {
		cfg.DefaultMarketQty = DefaultMarketQuantity
	}
	return &Serializer{sink: sink, cfg: cfg, log: log.Named("feed")}
}

// OnMessage deserializes and submits one instruction line. It reports
// whether the instruction was accepted onto the engine queue.
func (s *Serializer) OnMessage(line string) bool {
	m := s.deserialize(line)
	if m == nil {
		return false
	}

	if s.sink.TrySubmit(m) {
		return true
	}
	for attempt := 0; attempt < s.cfg.RetryCount; attempt++ {
		s.log.Warn("engine queue full, backing off", zap.Int("attempt", attempt+1))
		time.Sleep(s.cfg.RetrySleep)
		if s.sink.TrySubmit(m) {
			return true
		}
	}
	s.sink.ReleaseInstruction(m)
	return false
}

func (s *Serializer) deserialize(line string) *market.Instruction {
	tokens := strings.Split(line, s.cfg.Delimiter)
	if len(tokens) == 0 || tokens[0] == "" {
		return nil
	}

	m := s.sink.AcquireInstruction()
	switch tokens[0] {

	case market.TokenNewMarketOrder:
		// NEW;<clientId>;<clientOrderId>;<instrument>;<side>[;<quantity>]
		if len(tokens) < 5 || !s.parseCommon(m, tokens) {
			break
		}
		m.Kind = market.NewMarketOrder
		m.Quantity = s.cfg.DefaultMarketQty
		if len(tokens) > 5 && tokens[5] != "" {
			qty, err := strconv.ParseInt(tokens[5], 10, 64)
			if err != nil || qty <= 0 {
				break
			}
			m.Quantity = qty
		}
		return m

	case market.TokenNewLimitOrder:
		// LIMIT;<clientId>;<clientOrderId>;<instrument>;<side>;<quantity>;<price>
		if len(tokens) < 7 || !s.parseCommon(m, tokens) {
			break
		}
		qty, qtyErr := strconv.ParseInt(tokens[5], 10, 64)
		price, priceErr := strconv.ParseInt(tokens[6], 10, 64)
		if qtyErr != nil || priceErr != nil || qty <= 0 {
			break
		}
		m.Kind = market.NewLimitOrder
		m.Quantity = qty
		m.Price = price
		return m

	case market.TokenCancelOrder:
		// CANCEL;<clientId>;<orderId>
		if len(tokens) < 3 {
			break
		}
		clientID, clientErr := strconv.ParseUint(tokens[1], 10, 64)
		orderID, orderErr := strconv.ParseUint(tokens[2], 10, 64)
		if clientErr != nil || orderErr != nil {
			break
		}
		m.Kind = market.CancelOrder
		m.ClientID = clientID
		m.OrderID = orderID
		return m

	case market.TokenCancelAll:
		// CANCELALL;<clientId>
		if len(tokens) < 2 {
			break
		}
		clientID, err := strconv.ParseUint(tokens[1], 10, 64)
		if err != nil {
			break
		}
		m.Kind = market.CancelAllOrders
		m.ClientID = clientID
		return m

	default:
		s.log.Warn("unsupported instruction token", zap.String("token", tokens[0]))
	}

	s.sink.ReleaseInstruction(m)
	return nil
}

// parseCommon fills the fields shared by NEW and LIMIT:
// <clientId>;<clientOrderId>;<instrument>;<side> at tokens 1..4.
func (s *Serializer) parseCommon(m *market.Instruction, tokens []string) bool {
	clientID, clientErr := strconv.ParseUint(tokens[1], 10, 64)
	clientOrderID, orderErr := strconv.ParseUint(tokens[2], 10, 64)
	if clientErr != nil || orderErr != nil {
		return false
	}
	pair, ok := market.ParsePair(tokens[3])
	if !ok {
		s.log.Warn("unsupported instrument", zap.String("instrument", tokens[3]))
		return false
	}
	side, ok := market.ParseSide(tokens[4])
	if !ok {
		s.log.Warn("unsupported side", zap.String("side", tokens[4]))
		return false
	}
	m.ClientID = clientID
	m.ClientOrderID = clientOrderID
	m.Pair = pair
	m.Side = side
	return true
}
