package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/planbridge/internal/control"
	"github.com/vietddude/planbridge/internal/infra/chain/flow"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watcher cursor, chain head and linked wallet count",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.Timeout)
	defer cancel()

	st, err := control.OpenStorage(ctx, cfg.Storage, false)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = st.Close()
	}()

	network := string(cfg.Chain.Network)
	cursor := "-"
	updated := "-"
	var cursorHeight uint64
	c, err := st.Cursors.Get(ctx, network)
	switch {
	case err == nil:
		cursorHeight = c.Height
		cursor = fmt.Sprint(c.Height)
		updated = c.UpdatedAt.Format(time.RFC3339)
	case !errors.Is(err, storage.ErrCursorNotFound):
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	}

	links, err := st.Links.LoadAll(ctx)
	if err != nil {
		slog.Error("Failed to load links", "error", err)
		os.Exit(1)
	}

	head := "unavailable"
	lag := "-"
	if latest, err := flow.NewClient(cfg.Chain).LatestHeight(ctx); err == nil {
		head = fmt.Sprint(latest)
		if cursorHeight > 0 && latest >= cursorHeight {
			lag = fmt.Sprint(latest - cursorHeight)
		}
	} else {
		slog.Warn("Failed to fetch latest height", "error", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NETWORK\tCURSOR\tHEAD\tLAG\tUPDATED\tLINKS")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", network, cursor, head, lag, updated, len(links))
	_ = w.Flush()
}
