package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/planbridge/internal/indexing/history"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
	"github.com/vietddude/planbridge/internal/infra/chain/flow"
)

var historyCmd = &cobra.Command{
	Use:   "history [address]",
	Short: "Scan recent blocks and print an address's plan executions",
	Args:  cobra.ExactArgs(1),
	Run:   runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scanner.Timeout)
	defer cancel()

	client := flow.NewClient(cfg.Chain)
	svc := history.NewService(history.Config{
		EventType: cfg.Chain.EventType,
		ChunkSize: cfg.Scanner.ChunkSize,
		Lookback:  cfg.Scanner.Lookback,
	}, client, scanner.New(client, cfg.Scanner.Parallelism))

	report, err := svc.ForOwner(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load history", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Blocks %d-%d for %s\n", report.FromHeight, report.ToHeight, report.Owner)
	if !report.Complete {
		fmt.Println("Warning: some block ranges could not be queried, results are a lower bound")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HEIGHT\tPLAN\tEXEC\tIN (USD)\tOUT (BTC)\tTX")
	for _, ev := range report.Events {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
			ev.BlockHeight, ev.PlanID, ev.ExecutionNumber,
			ev.AmountIn.StringFixed(2), ev.AmountOut.StringFixed(8), ev.TransactionID)
	}
	_ = w.Flush()

	s := report.Summary
	fmt.Printf("\nExecutions: %d  Total: %s USD -> %s BTC", s.Count, s.TotalIn.StringFixed(2), s.TotalOut.StringFixed(8))
	if s.HasPrice {
		fmt.Printf("  Avg Price: %s", s.AveragePrice.StringFixed(2))
	}
	fmt.Println()
}
