package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EventPublisher sends one outbox event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, id, kind string, payload []byte) error
}

// DrainOutbox publishes up to batch pending outbox events and marks the
// delivered ones published. A publish failure stops the pass; already
// delivered events stay marked, the rest are retried next pass.
func (a *App) DrainOutbox(ctx context.Context, pub EventPublisher, batch int) (int, error) {
	pending, err := a.store.PendingOutboxEvents(batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	published := make([]string, 0, len(pending))
	var publishErr error
	for _, event := range pending {
		if err := pub.Publish(ctx, event.ID, event.Kind, event.Payload); err != nil {
			publishErr = fmt.Errorf("publish outbox event %s: %w", event.ID, err)
			break
		}
		published = append(published, event.ID)
	}
	if len(published) > 0 {
		if err := a.store.MarkOutboxPublished(published); err != nil {
			return len(published), fmt.Errorf("mark outbox published: %w", err)
		}
	}
	return len(published), publishErr
}

// RelayOutbox drains the outbox on a fixed interval until ctx is canceled.
// Broker consumers must tolerate the at-least-once delivery this produces.
func (a *App) RelayOutbox(ctx context.Context, pub EventPublisher, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.DrainOutbox(ctx, pub, batch); err != nil {
				slog.Error("outbox relay pass failed", "published", n, "err", err)
			}
		}
	}
}
