// Package events fans exploration events out to the configured sinks.
package events

import (
	"context"
	"errors"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic schemas.EventTopic, event any) error
	Close() error
}

// Multi publishes every event to all of its publishers.
type Multi []Publisher

// NewMulti drops nil publishers.
func NewMulti(pubs ...Publisher) Multi {
	out := make(Multi, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Publish delivers the event to each publisher even when some of them fail.
func (m Multi) Publish(ctx context.Context, topic schemas.EventTopic, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
