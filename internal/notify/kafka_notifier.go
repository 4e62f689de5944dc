package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/kafka"
)

// Publisher is the non-blocking half of kafka.Producer.
type Publisher interface {
	TryPublish(key, value []byte, headers ...kafkago.Header) bool
}

const envelopeVersion = 1

// KafkaNotifier wraps notifications in an Envelope and hands them to the
// producer inbox. A full inbox drops the event with a warning.
type KafkaNotifier struct {
	pub     Publisher
	service string
	log     *zap.Logger
	now     func() time.Time
}

func NewKafkaNotifier(pub Publisher, service string, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, service: service, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) {
	env, err := NewEnvelope(n, k.service, k.now())
	if err != nil {
		k.log.Warn("notification encode failed", zap.String("event_type", n.EventType), zap.Error(err))
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		k.log.Warn("envelope encode failed", zap.String("event_type", n.EventType), zap.Error(err))
		return
	}
	key := n.TargetID
	if key == "" {
		key = string(n.Channel)
	}
	headers := append([]kafkago.Header{
		{Key: "x-event-type", Value: []byte(n.EventType)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
		{Key: "x-channel", Value: []byte(n.Channel)},
	}, kafka.TraceHeaders(ctx)...)
	ok := k.pub.TryPublish(bloodbank.PartitionKey(key), value, headers...)
	if !ok {
		k.log.Warn("notification dropped, producer inbox full",
			zap.String("event_type", n.EventType),
			zap.String("channel", string(n.Channel)),
			zap.String("target_id", n.TargetID))
	}
}

func NewEnvelope(n Notification, producer string, at time.Time) (bloodbank.Envelope, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return bloodbank.Envelope{}, err
	}
	return bloodbank.Envelope{
		EventID:       uuid.NewString(),
		EventType:     n.EventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    at,
		Producer:      producer,
		Channel:       n.Channel,
		TargetID:      n.TargetID,
		CorrelationID: n.CorrelationID,
		Payload:       payload,
	}, nil
}
