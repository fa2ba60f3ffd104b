package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func placedMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateOrder,
		AggregateID:   "order-123",
		EventType:     string(EventTypeOrderPlaced),
		Payload:       []byte(`{"status":"paid"}`),
	}
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			return fmt.Errorf("aggregate id must be the key, got %s", key)
		}
		raw, _ := msg.Value.Encode()
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if env.ID != "outbox-1" || string(env.Payload) != `{"status":"paid"}` || !env.PublishedAt.Equal(fixed) {
			return fmt.Errorf("unexpected envelope: %+v", env)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderOutboxID] != "outbox-1" || headers[HeaderOriginalTopic] != TopicOrderEvents {
			return fmt.Errorf("unexpected headers: %v", headers)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerWithClient(sync), "")
	publisher.now = func() time.Time { return fixed }
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("empty topic must default to %s", TopicOrderEvents)
	}
	if err := publisher.Publish(context.Background(), placedMessage()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := sync.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	sync := mocks.NewSyncProducer(t, nil)
	sync.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerWithClient(sync), TopicDeadLetterQueue)
	if err := publisher.Publish(context.Background(), placedMessage()); err == nil {
		t.Fatal("expected publish error, got nil")
	}
	if err := sync.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var nilPublisher *OutboxTopicPublisher
	for _, p := range []*OutboxTopicPublisher{nilPublisher, NewOutboxPublisher(nil, "")} {
		if err := p.Publish(context.Background(), placedMessage()); err != errPublisherNotReady {
			t.Fatalf("expected errPublisherNotReady, got %v", err)
		}
	}
}

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	if got := PartitionKey(domain.OutboxMessage{ID: "outbox-9"}); got != "outbox-9" {
		t.Fatalf("message without aggregate must fall back to its id, got %q", got)
	}
	if got := PartitionKey(placedMessage()); got != "order-123" {
		t.Fatalf("expected aggregate id, got %q", got)
	}
}
