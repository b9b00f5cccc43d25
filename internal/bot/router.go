// Package bot turns chat commands into replies about a subscriber's linked
// wallet, plans and execution history.
package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/history"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
)

// LinkStore is the subset of links.Store used by the router.
type LinkStore interface {
	Link(ctx context.Context, address, subscriberID, displayName string) error
	Unlink(ctx context.Context, subscriberID string) (*domain.WalletLink, error)
	LookupBySubscriber(subscriberID string) (*domain.WalletLink, bool)
}

// ChainReader is the subset of chain.Querier used by the router.
type ChainReader interface {
	Plans(ctx context.Context, address string) ([]domain.PlanSnapshot, error)
	TokenBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error)
}

type HistorySource interface {
	ForOwner(ctx context.Context, owner string) (*history.Report, error)
}

// Message is one inbound chat message.
type Message struct {
	SubscriberID string
	DisplayName  string
	Text         string
}

type Outcome string

const (
	OutcomeHandled  Outcome = "handled"
	OutcomeRejected Outcome = "rejected"
)

// Reply is the router's answer. An empty Text means nothing should be sent.
type Reply struct {
	Command string
	Outcome Outcome
	Text    string
}

type Config struct {
	ExplorerURL    string
	WebAppURL      string
	HistoryLimit   int
	CommandTimeout time.Duration
}

type handlerFunc func(ctx context.Context, msg Message, arg string) (string, Outcome)

type Router struct {
	cfg      Config
	links    LinkStore
	chain    ChainReader
	history  HistorySource
	now      func() time.Time
	handlers map[string]handlerFunc
	log      *slog.Logger
}

func NewRouter(cfg Config, links LinkStore, chain ChainReader, hist HistorySource) *Router {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	r := &Router{
		cfg:     cfg,
		links:   links,
		chain:   chain,
		history: hist,
		now:     time.Now,
		log:     slog.Default().With("component", "bot"),
	}
	r.handlers = map[string]handlerFunc{
		"start":   r.handleLink,
		"link":    r.handleLink,
		"help":    r.handleHelp,
		"wallet":  r.handleWallet,
		"plans":   r.handlePlans,
		"history": r.handleHistory,
		"unlink":  r.handleUnlink,
	}
	return r
}

// ParseCommand splits "/cmd@bot arg" into a lowercase command and its
// trimmed argument. ok is false when text is not a command.
func ParseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Handle dispatches one message. It never panics; a failing handler yields a
// generic error reply.
func (r *Router) Handle(ctx context.Context, msg Message) (reply Reply) {
	log := r.log.With("subscriber", msg.SubscriberID, "request_id", uuid.NewString())

	cmd, arg, ok := ParseCommand(msg.Text)
	if !ok {
		return Reply{Outcome: OutcomeRejected}
	}
	reply.Command = cmd

	defer func() {
		if p := recover(); p != nil {
			log.Error("Command handler panic", "command", cmd, "panic", p, "stack", string(debug.Stack()))
			reply = Reply{Command: cmd, Outcome: OutcomeRejected, Text: "❌ Something went wrong. Please try again later."}
		}
		metrics.CommandsTotal.WithLabelValues(metricLabel(reply.Command, r.handlers), string(reply.Outcome)).Inc()
	}()

	h, found := r.handlers[cmd]
	if !found {
		log.Debug("Unknown command", "command", cmd)
		return Reply{Command: cmd, Outcome: OutcomeRejected, Text: "Unknown command. Use /help to see what I can do."}
	}

	if r.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CommandTimeout)
		defer cancel()
	}

	start := time.Now()
	text, outcome := h(ctx, msg, arg)
	log.Debug("Command handled", "command", cmd, "outcome", outcome, "took", time.Since(start))
	return Reply{Command: cmd, Outcome: outcome, Text: text}
}

// metricLabel keeps arbitrary user input out of metric labels.
func metricLabel(cmd string, known map[string]handlerFunc) string {
	if _, ok := known[cmd]; ok {
		return cmd
	}
	return "unknown"
}

func (r *Router) linked(msg Message) (*domain.WalletLink, string, bool) {
	link, ok := r.links.LookupBySubscriber(msg.SubscriberID)
	if !ok {
		return nil, notLinkedText, false
	}
	return link, "", true
}
