package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/json-iterator/go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

type recordingPublisher struct {
	topics []schemas.EventTopic
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, topic schemas.EventTopic, _ any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("sink down")}
	m := NewMulti(failing, nil, ok)
	require.Len(t, m, 2)

	err := m.Publish(ctx, schemas.TopicNodeDiscovered, schemas.NodeEvent{Index: 1})
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, []schemas.EventTopic{schemas.TopicNodeDiscovered}, ok.topics, "healthy sinks still receive events")

	assert.Error(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestNoopPublisher(t *testing.T) {
	t.Parallel()
	var p Publisher = &NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), schemas.TopicSessionReset, nil))
	assert.NoError(t, p.Close())
}

func TestRedisPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewRedisPublisherFromClient(client, WithStream("test:events"), WithMaxLen(2))

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Publish(ctx, schemas.TopicEdgeRecorded, schemas.EdgeEvent{
			SessionID: "s1",
			Head:      i,
			Tail:      i + 1,
			Action:    "Next",
			Timestamp: time.Unix(0, 0).UTC(),
		}))
	}

	entries, err := client.XRange(ctx, "test:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2, "stream must be trimmed to max length")

	last := entries[1]
	assert.Equal(t, string(schemas.TopicEdgeRecorded), last.Values["topic"])
	var got schemas.EdgeEvent
	require.NoError(t, json.Unmarshal([]byte(last.Values["payload"].(string)), &got))
	assert.Equal(t, 2, got.Head)
	assert.Equal(t, "Next", got.Action)

	assert.NoError(t, p.Close(), "borrowed clients are not closed")
	assert.NoError(t, client.Ping(ctx).Err())
}

func TestNewRedisPublisherUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = NewRedisPublisher(ctx, addr)
	assert.Error(t, err)
}

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

func TestNATSPublisher(t *testing.T) {
	url := startTestNATS(t)

	p, err := NewNATSPublisher(url, "")
	require.NoError(t, err)
	assert.Equal(t, "murphy.session.reset", p.Subject(schemas.TopicSessionReset))

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("murphy.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe() //nolint:errcheck
	require.NoError(t, nc.Flush())

	require.NoError(t, p.Publish(context.Background(), schemas.TopicSessionReset, schemas.ResetEvent{
		SessionID: "s1",
		Reason:    "max depth",
	}))
	require.NoError(t, p.Close())

	select {
	case msg := <-ch:
		assert.Equal(t, "murphy.session.reset", msg.Subject)
		var got schemas.ResetEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "max depth", got.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "murphy")
	assert.Error(t, err)
}
