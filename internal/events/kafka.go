package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/banking/verification-service/internal/pkg/logger"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher closed")

// KafkaConfig configures the producer
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewProducer dials the brokers with the settings used for audit events
func NewProducer(cfg KafkaConfig) (sarama.AsyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Flush.Frequency = 100 * time.Millisecond
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher writes events to one topic keyed by application id, so
// events of one investigation stay ordered within a partition
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	log      *logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewKafkaPublisher takes ownership of producer
func NewKafkaPublisher(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.Named("event_publisher"),
		done:     make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

// Publish enqueues the event. Delivery failures are logged asynchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ApplicationID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		},
		Timestamp: event.OccurredAt,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and stops the producer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.producer.Close()
	<-p.done
	return err
}

func (p *KafkaPublisher) drainErrors() {
	defer close(p.done)
	for perr := range p.producer.Errors() {
		key := ""
		if perr.Msg != nil && perr.Msg.Key != nil {
			if b, err := perr.Msg.Key.Encode(); err == nil {
				key = string(b)
			}
		}
		p.log.Error("event delivery failed",
			logger.ErrorField(perr.Err),
			logger.StringField("topic", p.topic),
			logger.StringField("application_id", key),
		)
	}
}
