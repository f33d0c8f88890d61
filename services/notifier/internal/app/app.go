package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"markethub/pkg/domain"
	"markethub/pkg/events"
	"markethub/pkg/store"
)

// Notification is a rendered message for a user.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers rendered notifications. The default sender logs them;
// a mail gateway can be plugged in without touching the handler.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	slog.Info("notification sent", "recipient", n.Recipient, "subject", n.Subject)
	return nil
}

// Config holds runtime configuration for the notifier application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Sender      Sender
}

// App turns order lifecycle events into user notifications.
type App struct {
	store  store.Store
	sender Sender
}

// New constructs the notifier application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	sender := cfg.Sender
	if sender == nil {
		sender = LogSender{}
	}
	return &App{store: dataStore, sender: sender}, nil
}

// Handle processes one broker message. Unknown kinds and malformed payloads
// are dropped after logging; requeueing them would loop forever.
func (a *App) Handle(ctx context.Context, kind string, payload []byte) error {
	if kind != events.KindOrderStatusChanged {
		slog.Warn("ignoring event of unknown kind", "kind", kind)
		return nil
	}
	var event events.OrderStatusChanged
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.Error("dropping malformed event payload", "kind", kind, "err", err)
		return nil
	}
	user, ok, err := a.store.GetUserByID(event.UserID)
	if err != nil {
		return fmt.Errorf("fetch user %s: %w", event.UserID, err)
	}
	if !ok {
		slog.Warn("dropping event for unknown user", "user_id", event.UserID)
		return nil
	}
	return a.sender.Send(ctx, renderStatusChange(user, event))
}

func renderStatusChange(user domain.User, event events.OrderStatusChanged) Notification {
	subject := fmt.Sprintf("Order %s: %s", shortID(event.OrderID), statusLine(event.To))
	body := fmt.Sprintf(
		"Hello,\n\nyour order %s changed status from %s to %s at %s.\n",
		event.OrderID, event.From, event.To, event.At.Format("2006-01-02 15:04 MST"),
	)
	return Notification{Recipient: user.Email, Subject: subject, Body: body}
}

func statusLine(status string) string {
	switch domain.OrderStatus(status) {
	case domain.StatusNew:
		return "placed"
	case domain.StatusConfirmed:
		return "confirmed"
	case domain.StatusAssembled:
		return "assembled"
	case domain.StatusSent:
		return "on its way"
	case domain.StatusDelivered:
		return "delivered"
	case domain.StatusCanceled:
		return "canceled"
	default:
		return status
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
