package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

var errNoOriginalPayload = errors.New("dlq record does not contain original event payload")

// kafkaEnvelope: формат, в котором outbox публикует сообщения (и в основной топик, и в DLQ).
type kafkaEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// dlqRecord: полезная нагрузка DLQ-сообщения outbox worker.
type dlqRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	PublishError  string          `json:"publish_error"`
}

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
	attempts  int
	lastError string
}

// decodeDLQMessage восстанавливает исходное событие заказа.
// ok=false без ошибки означает, что сообщение не из outbox или отсеяно фильтром.
func decodeDLQMessage(msg *sarama.ConsumerMessage, opts options, now time.Time) (replayMessage, bool, error) {
	var envelope kafkaEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}

	var record dlqRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayMessage{}, false, errNoOriginalPayload
	}

	original := kafkaEnvelope{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
		PublishedAt:   now.UTC(),
	}
	if !opts.matches(original) {
		return replayMessage{}, false, nil
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		topic:     opts.targetTopic,
		key:       firstNonEmpty(original.AggregateID, original.ID),
		value:     encoded,
		eventType: original.EventType,
		attempts:  record.Attempts,
		lastError: record.PublishError,
	}, true, nil
}

func (o options) matches(event kafkaEnvelope) bool {
	if o.eventType != "" && !strings.EqualFold(o.eventType, event.EventType) {
		return false
	}
	if o.orderID != "" && o.orderID != event.AggregateID {
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
