package events

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// DefaultSubjectPrefix is prepended to topics to form NATS subjects, so
// "murphy.>" matches every event.
const DefaultSubjectPrefix = "murphy"

// NATSPublisher publishes JSON encoded events to NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("murphy"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

// Subject returns the subject a topic is published on.
func (p *NATSPublisher) Subject(topic schemas.EventTopic) string {
	return p.prefix + "." + string(topic)
}

func (p *NATSPublisher) Publish(_ context.Context, topic schemas.EventTopic, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(topic), data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
