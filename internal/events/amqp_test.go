package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp091.Publishing
	closed   bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	c.exchange = exchange
	c.key = key
	c.msg = msg
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPNotifierPublishesByTopic(t *testing.T) {
	ch := &recordingChannel{}
	n := &AMQPNotifier{channel: ch, exchange: "wallet.events"}
	ev := Event{
		ID:          uuid.New(),
		Topic:       TopicSplitParticipantPaid,
		AggregateID: "split-1",
		Payload:     json.RawMessage(`{"index":0}`),
		OccurredAt:  time.Now().UTC(),
	}
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Equal(t, "wallet.events", ch.exchange)
	require.Equal(t, TopicSplitParticipantPaid, ch.key)
	require.Equal(t, "application/json", ch.msg.ContentType)
	require.Equal(t, ev.ID.String(), ch.msg.MessageId)

	var decoded Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	require.Equal(t, ev.AggregateID, decoded.AggregateID)

	require.NoError(t, n.Close())
	require.True(t, ch.closed)
}

func TestAMQPNotifierNotConfigured(t *testing.T) {
	var n *AMQPNotifier
	require.Error(t, n.Notify(context.Background(), Event{}))
}
