// Package notify decouples the core from delivery. Workflows call Notify and
// SendText and never learn whether delivery worked.
package notify

import (
	"context"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

type Notification struct {
	Channel       bloodbank.Channel
	TargetID      string
	EventType     string
	CorrelationID string
	Payload       any
}

// Notifier is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Texter sends best-effort SMS alerts.
type Texter interface {
	SendText(ctx context.Context, phoneNumber, message string)
}

type nop struct{}

func (nop) Notify(context.Context, Notification) {}
func (nop) SendText(context.Context, string, string) {}

// Nop discards everything.
func Nop() interface {
	Notifier
	Texter
} {
	return nop{}
}
