// Package notifier routes execution events to the subscriber linked to the
// plan owner.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/infra/notify"
)

// LinkLookup resolves the subscriber for an owner address.
type LinkLookup interface {
	LookupByAddress(address string) (*domain.WalletLink, bool)
}

// Dedup remembers which events were already delivered.
type Dedup interface {
	// MarkNotified returns false if key was already marked.
	MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetNotified(ctx context.Context, key string) error
}

type Notifier struct {
	links    LinkLookup
	channel  notify.Channel
	dedup    Dedup
	ttl      time.Duration
	explorer string
	log      *slog.Logger
}

// New builds a notifier. dedup may be nil.
func New(links LinkLookup, channel notify.Channel, dedup Dedup, ttl time.Duration, explorerURL string) *Notifier {
	return &Notifier{
		links:    links,
		channel:  channel,
		dedup:    dedup,
		ttl:      ttl,
		explorer: strings.TrimRight(explorerURL, "/"),
		log:      slog.Default().With("component", "notifier", "channel", channel.Name()),
	}
}

// Notify delivers ev to the owner's subscriber. Unlinked owners are skipped
// silently and delivery failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, ev domain.ExecutionEvent) {
	link, ok := n.links.LookupByAddress(ev.Owner)
	if !ok {
		metrics.NotificationsTotal.WithLabelValues(n.channel.Name(), "unlinked").Inc()
		return
	}

	key := ev.Key()
	if n.dedup != nil {
		first, err := n.dedup.MarkNotified(ctx, key, n.ttl)
		switch {
		case err != nil:
			n.log.Warn("Dedup check failed, delivering anyway", "event", key, "error", err)
		case !first:
			metrics.NotificationsTotal.WithLabelValues(n.channel.Name(), "duplicate").Inc()
			n.log.Debug("Already notified", "event", key)
			return
		}
	}

	text := FormatExecution(ev, n.explorer)
	if err := n.channel.Send(ctx, link.SubscriberID, text); err != nil {
		metrics.NotificationsTotal.WithLabelValues(n.channel.Name(), "failed").Inc()
		n.log.Error("Delivery failure",
			"subscriber", link.SubscriberID,
			"plan", ev.PlanID,
			"tx", ev.TransactionID,
			"error", err,
		)
		var de *notify.DeliveryError
		if n.dedup != nil && !(errors.As(err, &de) && de.Permanent) {
			// Let a later rescan try again.
			if ferr := n.dedup.ForgetNotified(ctx, key); ferr != nil {
				n.log.Warn("Failed to clear dedup mark", "event", key, "error", ferr)
			}
		}
		return
	}

	metrics.NotificationsTotal.WithLabelValues(n.channel.Name(), "sent").Inc()
	n.log.Info("Notification sent", "subscriber", link.SubscriberID, "plan", ev.PlanID, "execution", ev.ExecutionNumber)
}

// FormatExecution renders the Markdown notification for ev. The price line
// is omitted when nothing was bought.
func FormatExecution(ev domain.ExecutionEvent, explorerURL string) string {
	var b strings.Builder
	b.WriteString("🎉 *Plan Executed!*\n\n")
	fmt.Fprintf(&b, "📋 Plan #%d (execution #%d)\n", ev.PlanID, ev.ExecutionNumber)
	fmt.Fprintf(&b, "💵 %s USD → %s BTC\n", ev.AmountIn.StringFixed(2), ev.AmountOut.StringFixed(8))
	if price, ok := ev.Price(); ok {
		fmt.Fprintf(&b, "💰 Price: %s USD/BTC\n", price.StringFixed(2))
	}
	if ev.TransactionID != "" {
		fmt.Fprintf(&b, "\n[View Transaction](%s/transaction/%s)", explorerURL, ev.TransactionID)
	}
	return b.String()
}
