package bot

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vietddude/planbridge/internal/infra/notify/telegram"
)

// UpdateSource is the long-polling half of the Telegram client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Sender delivers replies.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Poller reads updates and hands each message to the router on its own
// goroutine, at most workers at a time.
type Poller struct {
	source      UpdateSource
	sender      Sender
	router      *Router
	pollTimeout time.Duration
	errorSleep  time.Duration
	sem         chan struct{}
	wg          sync.WaitGroup
	log         *slog.Logger
}

func NewPoller(source UpdateSource, sender Sender, router *Router, pollTimeout time.Duration, workers int) *Poller {
	return &Poller{
		source:      source,
		sender:      sender,
		router:      router,
		pollTimeout: pollTimeout,
		errorSleep:  3 * time.Second,
		sem:         make(chan struct{}, max(workers, 1)),
		log:         slog.Default().With("component", "poller"),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("Starting update poller")
	defer p.wg.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			p.log.Info("Update poller stopped")
			return nil
		}

		updates, err := p.source.GetUpdates(ctx, offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.log.Warn("Failed to get updates", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.errorSleep):
			}
			continue
		}

		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			p.dispatch(ctx, toMessage(u.Message))
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, msg Message) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()

		reply := p.router.Handle(ctx, msg)
		if reply.Text == "" {
			return
		}
		if err := p.sender.Send(ctx, msg.SubscriberID, reply.Text); err != nil {
			p.log.Warn("Failed to send reply", "subscriber", msg.SubscriberID, "command", reply.Command, "error", err)
		}
	}()
}

func toMessage(m *telegram.Message) Message {
	msg := Message{
		SubscriberID: strconv.FormatInt(m.Chat.ID, 10),
		Text:         m.Text,
	}
	if m.From != nil {
		msg.DisplayName = m.From.Username
		if msg.DisplayName == "" {
			msg.DisplayName = m.From.FirstName
		}
	}
	return msg
}
