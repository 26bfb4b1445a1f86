package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MagicHoovy/Steve/internal"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements EventHandler, every detected change becomes one
// message keyed by charge point so that its events stay ordered in a partition.
// Writes are batched in the background and never hold up the poller.
type KafkaPublisher struct {
	writer messageWriter
	log    internal.LogHandler
}

func NewKafkaPublisher(brokers []string, topic string, log internal.LogHandler) *KafkaPublisher {
	p := &KafkaPublisher{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: writeTimeout,
		Async:        true,
		Completion:   p.completion,
	}
	return p
}

// completion reports the outcome of a background batch write
func (p *KafkaPublisher) completion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range messages {
		p.log.Error("kafka: publishing event for "+string(msg.Key), err)
	}
}

func (p *KafkaPublisher) OnStatusChanged(event *internal.EventMessage) {
	p.publish(event)
}

func (p *KafkaPublisher) OnEnergyIncreased(event *internal.EventMessage) {
	p.publish(event)
}

func (p *KafkaPublisher) publish(event *internal.EventMessage) {
	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("kafka: encoding event", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ChargePointId),
		Value: value,
		Time:  event.Time,
	})
	if err != nil {
		p.log.Error("kafka: publishing "+event.Type+" for "+event.ChargePointId, err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
