// Package pubsub implements event delivery over Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"

	"github.com/listwatch/listwatch/internal/notify"
)

// Publisher publishes events to one Pub/Sub topic.
type Publisher struct {
	topic *gcppubsub.Topic
}

// New wraps an existing topic handle.
func New(topic *gcppubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Connect creates a client and topic handle. The returned cleanup stops the
// topic's publish goroutines and closes the client.
func Connect(ctx context.Context, projectID, topicID string) (*Publisher, func(), error) {
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	cleanup := func() {
		topic.Stop()
		_ = client.Close()
	}
	return New(topic), cleanup, nil
}

// Publish marshals the event to JSON and publishes it. Search and status
// ride along as attributes so subscribers can filter without decoding.
func (p *Publisher) Publish(ctx context.Context, event notify.Event) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"search": event.Search,
			"status": string(event.Status),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}
	return id, nil
}
