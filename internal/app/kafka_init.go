package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// kafkaPublishers — публикация outbox в основной topic и в DLQ поверх одного producer.
type kafkaPublishers struct {
	producer *kafka.Producer
	events   *kafka.OutboxTopicPublisher
	dlq      *kafka.OutboxTopicPublisher
}

// initKafka создаёт producer, если брокеры заданы.
// Возвращает nil, nil при пустом списке брокеров; ошибка подключения не фатальна для вызывающего.
func initKafka(cfg Config, logger *log.Entry) (*kafkaPublishers, error) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  brokers,
		ClientID: cfg.KafkaClientID,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return &kafkaPublishers{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		dlq:      kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}, nil
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(publishers *kafkaPublishers, logger *log.Entry) {
	if publishers == nil || publishers.producer == nil {
		return
	}

	if err := publishers.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
