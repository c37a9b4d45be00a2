package feed

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads wire-format instruction lines from a Kafka topic and feeds
// them through the serializer. One consumer goroutine is the sole reader;
// ordering within a partition is preserved onto the engine queue.
type Consumer struct {
	reader *kafka.Reader
	ser    *Serializer
	log    *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, ser *Serializer, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		ser: ser,
		log: log.Named("consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("instruction consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !c.ser.OnMessage(string(msg.Value)) {
			c.log.Warn("instruction not accepted", zap.ByteString("line", msg.Value))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
