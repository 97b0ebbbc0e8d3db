package events

import (
	"context"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// NoopPublisher is a Publisher that does nothing.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic schemas.EventTopic, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
