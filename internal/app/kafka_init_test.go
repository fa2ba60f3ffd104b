package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafka_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " , "} {
		publishers, err := initKafka(Config{KafkaBrokers: brokers}, logger)
		if err != nil {
			t.Errorf("expected no error for brokers %q, got %v", brokers, err)
		}
		if publishers != nil {
			t.Errorf("expected nil publishers for brokers %q", brokers)
		}
	}
}

func TestInitKafka_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	publishers, err := initKafka(Config{
		KafkaBrokers:  "127.0.0.1:1, 127.0.0.1:2",
		KafkaClientID: "checkout-test",
	}, logger)
	if err == nil {
		closeKafka(publishers, logger)
		t.Fatal("expected error for unreachable brokers")
	}
	if publishers != nil {
		t.Error("expected nil publishers on error")
	}
}

func TestCloseKafka_Nil(_ *testing.T) {
	logger := log.WithField("test", "kafka")

	closeKafka(nil, logger)
	closeKafka(&kafkaPublishers{}, logger)
}
