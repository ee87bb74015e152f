package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink produces each traded price as a message whose value is the decimal
// price.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink writes to topic on brokers. Connections are opened on first send.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Send(ctx context.Context, price int64) error {
	msg := kafka.Message{
		Value: []byte(strconv.FormatInt(price, 10)),
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
