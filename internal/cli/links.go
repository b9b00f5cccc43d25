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
	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/core/links"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Inspect and manage wallet links",
}

var linksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every linked wallet",
	Run:   runLinksList,
}

var linksUnlinkCmd = &cobra.Command{
	Use:   "unlink [subscriber_id]",
	Short: "Remove a subscriber's wallet link",
	Args:  cobra.ExactArgs(1),
	Run:   runLinksUnlink,
}

func init() {
	linksCmd.AddCommand(linksListCmd, linksUnlinkCmd)
	rootCmd.AddCommand(linksCmd)
}

func openLinks(ctx context.Context) *links.Store {
	cfg := loadConfig()
	st, err := control.OpenStorage(ctx, cfg.Storage, false)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	store, err := links.Open(ctx, st.Links)
	if err != nil {
		_ = st.Close()
		slog.Error("Failed to load links", "error", err)
		os.Exit(1)
	}
	return store
}

func runLinksList(cmd *cobra.Command, args []string) {
	store := openLinks(context.Background())
	defer func() {
		_ = store.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ADDRESS\tSUBSCRIBER\tNAME\tLINKED")
	for _, l := range store.List() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Address, l.SubscriberID, l.DisplayName, l.LinkedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func runLinksUnlink(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := openLinks(ctx)
	defer func() {
		_ = store.Close()
	}()

	prev, err := store.Unlink(ctx, args[0])
	if errors.Is(err, domain.ErrNotLinked) {
		fmt.Printf("Subscriber %s has no linked wallet\n", args[0])
		return
	}
	if err != nil {
		slog.Error("Failed to unlink", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Unlinked %s from subscriber %s\n", prev.Address, args[0])
}
