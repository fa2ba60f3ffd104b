package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ProducerConfig — параметры подключения к Kafka.
type ProducerConfig struct {
	Brokers    []string
	ClientID   string
	MaxRetries int
	// Timeout ограничивает ожидание подтверждения от брокеров.
	Timeout time.Duration
}

// Record — сообщение, готовое к отправке.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer отправляет сообщения через синхронный idempotent producer:
// Send возвращается только после подтверждения всеми in-sync репликами.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

func newSaramaConfig(cfg ProducerConfig) *sarama.Config {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = true
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = 5
	if cfg.MaxRetries > 0 {
		sc.Producer.Retry.Max = cfg.MaxRetries
	}
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	// idempotent producer требует одного in-flight запроса на соединение.
	sc.Net.MaxOpenRequests = 1
	return sc
}

// NewProducer подключается к брокерам из cfg.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	sync, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerWithClient(sync), nil
}

// NewProducerWithClient оборачивает готовый sarama.SyncProducer, например mocks.SyncProducer.
func NewProducerWithClient(sync sarama.SyncProducer) *Producer {
	return &Producer{sync: sync, logger: log.WithField("component", "kafka-producer")}
}

// Send отправляет запись и ждёт подтверждения.
func (p *Producer) Send(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     rec.Topic,
		Key:       sarama.StringEncoder(rec.Key),
		Value:     sarama.ByteEncoder(rec.Value),
		Timestamp: time.Now(),
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	fields := log.Fields{"topic": rec.Topic, "key": rec.Key}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", rec.Topic, err)
	}
	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

// PublishJSON сериализует v в JSON и отправляет через Send.
func (p *Producer) PublishJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	return p.Send(ctx, Record{Topic: topic, Key: key, Value: value, Headers: headers})
}

// Close закрывает producer, дожидаясь отправки буферизованных сообщений.
func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
