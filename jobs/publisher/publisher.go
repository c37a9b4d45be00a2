package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/domain/market"
	"github.com/eaglecoth/matching-engine/infra/metrics"
	"github.com/eaglecoth/matching-engine/infra/outbox"
)

// Event is the published representation of an execution report.
type Event struct {
	Type          string `json:"type"`
	Instrument    string `json:"instrument"`
	Side          string `json:"side"`
	ClientID      uint64 `json:"clientId"`
	ClientOrderID uint64 `json:"clientOrderId,omitempty"`
	OrderID       uint64 `json:"orderId,omitempty"`
	Price         int64  `json:"price,omitempty"`
	Quantity      int64  `json:"quantity,omitempty"`
}

// Config holds the broker and drain-schedule knobs.
type Config struct {
	Brokers []string
	Topic   string
	// Interval between outbox drain rounds.
	Interval time.Duration
}

// Publisher moves execution reports from the engine's outbound stream to
// Kafka. Each report is first persisted in the outbox, then published on the
// next drain round; failed publishes stay pending and are retried.
type Publisher struct {
	cfg      Config
	producer sarama.SyncProducer
	box      *outbox.Outbox

	execs   <-chan *market.Execution
	release func(*market.Execution)
	metrics *metrics.Metrics

	log *zap.Logger
	wg  sync.WaitGroup
}

func New(
	cfg Config,
	box *outbox.Outbox,
	execs <-chan *market.Execution,
	release func(*market.Execution),
	m *metrics.Metrics,
	log *zap.Logger,
) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("publisher: connect %v: %w", cfg.Brokers, err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Publisher{
		cfg:      cfg,
		producer: producer,
		box:      box,
		execs:    execs,
		release:  release,
		metrics:  m,
		log:      log.Named("publisher"),
	}, nil
}

// Start launches the persist loop and the drain loop. Both exit when ctx is
// cancelled; Close waits for them.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.persistLoop(ctx)
	go p.drainLoop(ctx)
}

// persistLoop stores every execution report in the outbox and recycles the
// report back to its pool. Persistence, not publication, is what makes a
// report durable.
func (p *Publisher) persistLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.execs:
			p.persist(e)
		}
	}
}

func (p *Publisher) persist(e *market.Execution) {
	defer p.release(e)

	payload, err := json.Marshal(Event{
		Type:          e.Type.String(),
		Instrument:    e.Pair.String(),
		Side:          e.Side.String(),
		ClientID:      e.ClientID,
		ClientOrderID: e.ClientOrderID,
		OrderID:       e.OrderID,
		Price:         e.Price,
		Quantity:      e.Quantity,
	})
	if err != nil {
		p.log.Error("execution encode failed", zap.Error(err))
		return
	}
	if _, err := p.box.Append(payload); err != nil {
		p.log.Error("outbox append failed", zap.Error(err))
		return
	}
	p.metrics.ExecutionsPublished.WithLabelValues(e.Type.String()).Inc()
}

func (p *Publisher) drainLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(); err != nil {
				p.log.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// drain publishes every pending outbox entry in sequence order. A broker
// failure leaves the entry pending; the next round retries it.
func (p *Publisher) drain() error {
	return p.box.ScanPending(func(r *outbox.Record) error {
		if err := p.box.MarkSent(r.Seq); err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{
			Topic: p.cfg.Topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d", r.Seq)),
			Value: sarama.ByteEncoder(r.Payload),
		}
		if _, _, err := p.producer.SendMessage(msg); err != nil {
			p.metrics.PublishFailures.Inc()
			p.log.Warn("publish failed, will retry",
				zap.Uint64("seq", r.Seq), zap.Error(err))
			return nil
		}
		return p.box.MarkAcked(r.Seq)
	})
}

// Close waits for the loops to exit, compacts acked entries, and releases
// the producer.
func (p *Publisher) Close() error {
	p.wg.Wait()
	if err := p.box.Compact(); err != nil {
		p.log.Warn("outbox compaction failed", zap.Error(err))
	}
	return p.producer.Close()
}
