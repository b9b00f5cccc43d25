// Package notify defines outbound delivery channels for subscriber messages.
package notify

import (
	"context"
	"fmt"
)

// Channel delivers a rendered message to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipientID, text string) error
}

// DeliveryError reports a message the channel could not deliver.
type DeliveryError struct {
	Channel     string
	RecipientID string
	// Permanent is set when retrying cannot help, e.g. the user blocked the bot.
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failure via %s to %s: %v", e.Channel, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
