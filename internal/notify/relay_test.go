package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
	"github.com/ariefcatur/go-bloodbank/internal/testutil"
)

func envelopeMessage(t *testing.T, env bloodbank.Envelope) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: bloodbank.TopicNotifications, Value: b}
}

func TestRelay_PublishesOncePerEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb := testutil.NewTestRedis(t)

	sub := rdb.Subscribe(ctx, "topic:org:org-1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	relay := notify.NewRelay(rdb, "relay-test", nil)
	msg := envelopeMessage(t, bloodbank.Envelope{
		EventID:       "evt-1",
		EventType:     bloodbank.EventRequestApproved,
		Channel:       bloodbank.ChannelOrganization,
		TargetID:      "org-1",
		CorrelationID: "req-1",
		Payload:       json.RawMessage(`{"units":2}`),
	})
	require.NoError(t, relay.Handle(ctx, msg))
	require.NoError(t, relay.Handle(ctx, msg))

	got, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var rm notify.RealtimeMessage
	require.NoError(t, json.Unmarshal([]byte(got.Payload), &rm))
	assert.Equal(t, "evt-1", rm.EventID)
	assert.Equal(t, "req-1", rm.CorrelationID)
	assert.JSONEq(t, `{"units":2}`, string(rm.Payload))

	select {
	case dup := <-sub.Channel():
		t.Fatalf("redelivered event published twice: %v", dup)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelay_SkipsUndecodable(t *testing.T) {
	relay := notify.NewRelay(testutil.NewTestRedis(t), "relay-test", nil)
	assert.NoError(t, relay.Handle(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	assert.NoError(t, relay.Handle(context.Background(), kafkago.Message{Value: []byte(`{"event_type":"X"}`)}))
}

func TestRelay_SkipsUnknownVersion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb := testutil.NewTestRedis(t)

	relay := notify.NewRelay(rdb, "relay-test", nil)
	msg := envelopeMessage(t, bloodbank.Envelope{EventID: "evt-v2", Channel: bloodbank.ChannelUser, TargetID: "u-1"})
	msg.Headers = []kafkago.Header{{Key: "x-event-version", Value: []byte("2")}}
	require.NoError(t, relay.Handle(ctx, msg))

	n, err := rdb.Exists(ctx, "dedup:relay-test:evt-v2").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "skipped envelope must not claim its dedup key")
}
