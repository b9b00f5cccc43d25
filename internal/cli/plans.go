package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/core/plan"
	"github.com/vietddude/planbridge/internal/infra/chain"
	"github.com/vietddude/planbridge/internal/infra/chain/flow"
)

var plansCmd = &cobra.Command{
	Use:   "plans [address]",
	Short: "Print an address's DCA plans, one script call per plan",
	Args:  cobra.ExactArgs(1),
	Run:   runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scanner.Timeout)
	defer cancel()

	if err := printPlans(ctx, os.Stdout, flow.NewClient(cfg.Chain), args[0], time.Now()); err != nil {
		slog.Error("Failed to load plans", "error", err)
		os.Exit(1)
	}
}

type planLookup interface {
	PlanIDs(ctx context.Context, address string) ([]uint64, error)
	PlanSnapshot(ctx context.Context, address string, planID uint64) (*domain.PlanSnapshot, error)
}

// printPlans looks plans up one by one, so a plan closed between the id
// listing and its lookup is skipped rather than failing the whole report.
func printPlans(ctx context.Context, out io.Writer, reader planLookup, address string, now time.Time) error {
	ids, err := reader.PlanIDs(ctx, address)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintln(out, "No plans")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PLAN\tSTATUS\tAMOUNT (USD)\tCYCLE\tEXECUTIONS\tNEXT")
	for _, id := range ids {
		p, err := reader.PlanSnapshot(ctx, address, id)
		if errors.Is(err, chain.ErrPlanNotFound) {
			slog.Warn("Plan disappeared", "plan", id)
			continue
		}
		if err != nil {
			return err
		}
		st := plan.Project(*p, now)
		next := "ready"
		if !st.ReadyToExecute {
			next = st.NextExecutionTime.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.PlanID, plan.LabelOf(*p), p.AmountPerExecution.StringFixed(2),
			plan.FormatCycle(p.TimeCycle), plan.ExecutionsLabel(*p), next)
	}
	return w.Flush()
}
