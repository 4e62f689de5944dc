package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/kafka"
	"github.com/ariefcatur/go-bloodbank/internal/redisx"
)

// RealtimeMessage is what subscribers of a realtime channel receive.
type RealtimeMessage struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Relay fans notification envelopes out to Redis pub/sub channels, one
// channel per audience. Redelivered envelopes are published once.
type Relay struct {
	rdb     redis.Cmdable
	service string
	log     *zap.Logger
	tracer  trace.Tracer
}

func NewRelay(rdb redis.Cmdable, service string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		rdb:     rdb,
		service: service,
		log:     log.Named("relay"),
		tracer:  otel.Tracer("github.com/ariefcatur/go-bloodbank/internal/notify"),
	}
}

// Handle is a kafka.Handler for TopicNotifications.
func (r *Relay) Handle(ctx context.Context, m kafkago.Message) error {
	ctx, span := r.tracer.Start(kafka.ExtractTrace(ctx, m.Headers), "relay.handle")
	defer span.End()

	if v := kafka.Header(m.Headers, "x-event-version"); v != "" && v != strconv.Itoa(envelopeVersion) {
		r.log.Warn("unsupported envelope version", zap.String("version", v), zap.Int64("offset", m.Offset))
		return nil
	}
	env, err := kafka.Decode[bloodbank.Envelope](m.Value)
	if err != nil {
		// poison message, commit and move on
		r.log.Warn("undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventID == "" {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, r.service, env.EventID)
	fresh, err := redisx.Claim(ctx, r.rdb, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !fresh {
		return nil
	}

	channel, body, err := Realtime(env)
	if err != nil {
		r.log.Warn("realtime encode failed", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if err := r.rdb.Publish(ctx, channel, body).Err(); err != nil {
		// let the redelivery try again
		_ = r.rdb.Del(ctx, dkey).Err()
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	r.log.Debug("relayed", zap.String("event_type", env.EventType), zap.String("channel", channel))
	return nil
}

// Realtime maps an envelope to its pub/sub channel and message body.
func Realtime(env bloodbank.Envelope) (string, []byte, error) {
	body, err := json.Marshal(RealtimeMessage{
		EventID:       env.EventID,
		Type:          env.EventType,
		CorrelationID: env.CorrelationID,
		Payload:       env.Payload,
	})
	if err != nil {
		return "", nil, err
	}
	return bloodbank.RealtimeChannel(env.Channel, env.TargetID), body, nil
}
