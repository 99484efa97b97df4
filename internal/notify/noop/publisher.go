// Package noop discards events when no broker is configured.
package noop

import (
	"context"

	"github.com/listwatch/listwatch/internal/notify"
)

// Publisher drops every event.
type Publisher struct{}

// New returns a noop Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish discards the event.
func (Publisher) Publish(context.Context, notify.Event) (string, error) {
	return "", nil
}
