package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/core/plan"
	"github.com/vietddude/planbridge/internal/infra/chain"
)

const notLinkedText = "❌ No wallet linked.\n\nUse /start YOUR\\_FLOW\\_ADDRESS to link your wallet."

func (r *Router) handleLink(ctx context.Context, msg Message, arg string) (string, Outcome) {
	if arg == "" {
		return "👋 Welcome to the DCA plan bot!\n\n" +
			"Link your Flow wallet with:\n" +
			"`/start YOUR_FLOW_ADDRESS`\n\n" +
			"Example: `/start 0x1234567890abcdef`\n\n" +
			"The web app can also give you a ready-made link.", OutcomeHandled
	}

	err := r.links.Link(ctx, arg, msg.SubscriberID, msg.DisplayName)
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return "❌ Invalid Flow address.\n\n" +
			"Addresses are `0x` followed by 16 hex characters.\n" +
			"Example: `0x1234567890abcdef`", OutcomeRejected
	case err != nil:
		r.log.Error("Link failed", "subscriber", msg.SubscriberID, "error", err)
		return "❌ Could not save your wallet right now. Please try again.", OutcomeRejected
	}

	addr, _ := domain.NormalizeAddress(arg)
	return fmt.Sprintf("✅ Wallet linked!\n\n📍 Address: `%s`\n\n"+
		"You will be notified whenever one of your plans executes.\n\n"+
		"Use /help to see available commands.", addr), OutcomeHandled
}

func (r *Router) handleHelp(ctx context.Context, msg Message, arg string) (string, Outcome) {
	var b strings.Builder
	b.WriteString("📚 *Available commands*\n\n")
	b.WriteString("/start FLOW\\_ADDRESS - Link your Flow wallet\n")
	b.WriteString("/wallet - Wallet balances (FLOW, USD, BTC)\n")
	b.WriteString("/plans - Your active plans\n")
	b.WriteString("/history - Recent executions\n")
	b.WriteString("/unlink - Unlink your wallet\n")
	b.WriteString("/help - This message\n\n")
	b.WriteString("🔔 Execution notifications are sent automatically once a wallet is linked.")
	if r.cfg.WebAppURL != "" {
		fmt.Fprintf(&b, "\n\n🌐 [Open the web app](%s)", r.cfg.WebAppURL)
	}
	return b.String(), OutcomeHandled
}

func (r *Router) handleWallet(ctx context.Context, msg Message, arg string) (string, Outcome) {
	link, text, ok := r.linked(msg)
	if !ok {
		return text, OutcomeRejected
	}

	balances, err := r.chain.TokenBalances(ctx, link.Address)
	if err != nil {
		r.log.Error("Balance query failed", "address", link.Address, "error", err)
		return "❌ Error fetching wallet information.", OutcomeRejected
	}

	var b strings.Builder
	b.WriteString("💼 *Your Flow Wallet*\n\n")
	fmt.Fprintf(&b, "📍 Address: `%s`\n", link.Address)
	fmt.Fprintf(&b, "💰 FLOW: %s\n", balances[chain.NativeToken].StringFixed(4))
	fmt.Fprintf(&b, "💵 USD: %s\n", balances["USD"].StringFixed(2))
	fmt.Fprintf(&b, "₿ BTC: %s\n", balances["BTC"].StringFixed(8))
	fmt.Fprintf(&b, "🔗 Linked: %s\n\n", link.LinkedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "[View on Flowscan](%s/account/%s)", r.cfg.ExplorerURL, link.Address)
	return b.String(), OutcomeHandled
}

func (r *Router) handlePlans(ctx context.Context, msg Message, arg string) (string, Outcome) {
	link, text, ok := r.linked(msg)
	if !ok {
		return text, OutcomeRejected
	}

	plans, err := r.chain.Plans(ctx, link.Address)
	if err != nil {
		r.log.Error("Plans query failed", "address", link.Address, "error", err)
		return "❌ Error fetching plans. Make sure your account is set up!", OutcomeRejected
	}
	if len(plans) == 0 {
		return "📋 You have no plans yet.\n\nCreate one in the web app!", OutcomeHandled
	}

	now := r.now()
	var (
		b      strings.Builder
		active int
	)
	for _, p := range plans {
		if !p.IsActive {
			continue
		}
		active++
		st := plan.Project(p, now)
		fmt.Fprintf(&b, "*Plan #%d*", p.PlanID)
		if p.IsPaused {
			b.WriteString(" (paused)")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "💵 Amount: %s USD\n", p.AmountPerExecution.StringFixed(2))
		fmt.Fprintf(&b, "⏱ Cycle: %s\n", plan.FormatCycle(p.TimeCycle))
		fmt.Fprintf(&b, "📊 Executions: %s\n", plan.ExecutionsLabel(p))
		if st.ReadyToExecute {
			b.WriteString("✅ Ready to execute\n")
		} else {
			b.WriteString("⏳ Waiting\n")
			if st.SecondsUntilNext > 0 {
				fmt.Fprintf(&b, "⏰ Next: %s\n", plan.FormatDuration(st.SecondsUntilNext))
			}
		}
		b.WriteString("\n")
	}
	if active == 0 {
		return fmt.Sprintf("📋 None of your %d plans are active.", len(plans)), OutcomeHandled
	}
	return fmt.Sprintf("📋 *Your Plans* (%d active of %d)\n\n", active, len(plans)) + b.String(), OutcomeHandled
}

func (r *Router) handleHistory(ctx context.Context, msg Message, arg string) (string, Outcome) {
	link, text, ok := r.linked(msg)
	if !ok {
		return text, OutcomeRejected
	}

	rep, err := r.history.ForOwner(ctx, link.Address)
	if err != nil {
		r.log.Error("History query failed", "address", link.Address, "error", err)
		return "❌ Error fetching history.", OutcomeRejected
	}

	advisory := ""
	if !rep.Complete {
		advisory = "\n\n⚠️ _Some blocks could not be read; history may be incomplete._"
	}
	if len(rep.Events) == 0 {
		return fmt.Sprintf("📊 No executions found in the last %d blocks.", rep.ToHeight-rep.FromHeight) + advisory, OutcomeHandled
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Execution History* (%d)\n\n", len(rep.Events))
	shown := rep.Events
	if len(shown) > r.cfg.HistoryLimit {
		shown = shown[:r.cfg.HistoryLimit]
	}
	for _, ev := range shown {
		fmt.Fprintf(&b, "*Execution #%d* (Plan #%d)\n", ev.ExecutionNumber, ev.PlanID)
		fmt.Fprintf(&b, "💵 %s USD → %s BTC\n", ev.AmountIn.StringFixed(2), ev.AmountOut.StringFixed(8))
		fmt.Fprintf(&b, "📦 Block: %d\n", ev.BlockHeight)
		fmt.Fprintf(&b, "[View Tx](%s/transaction/%s)\n\n", r.cfg.ExplorerURL, ev.TransactionID)
	}
	if len(rep.Events) > len(shown) {
		fmt.Fprintf(&b, "_Showing last %d of %d executions_\n", len(shown), len(rep.Events))
	}

	s := rep.Summary
	b.WriteString("\n📈 *Summary*\n")
	fmt.Fprintf(&b, "Total: %s USD → %s BTC", s.TotalIn.StringFixed(2), s.TotalOut.StringFixed(8))
	if s.HasPrice {
		fmt.Fprintf(&b, "\nAvg Price: %s USD/BTC", s.AveragePrice.StringFixed(2))
	}
	b.WriteString(advisory)
	return b.String(), OutcomeHandled
}

func (r *Router) handleUnlink(ctx context.Context, msg Message, arg string) (string, Outcome) {
	_, err := r.links.Unlink(ctx, msg.SubscriberID)
	switch {
	case errors.Is(err, domain.ErrNotLinked):
		return "❌ No wallet linked.", OutcomeRejected
	case err != nil:
		r.log.Error("Unlink failed", "subscriber", msg.SubscriberID, "error", err)
		return "❌ Could not unlink right now. Please try again.", OutcomeRejected
	}
	return "✅ Wallet unlinked. You will no longer receive notifications.", OutcomeHandled
}
