package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/planbridge/internal/control"
	"github.com/vietddude/planbridge/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Move the watcher cursor to a given block height",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()
	st, err := control.OpenStorage(ctx, cfg.Storage, false)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = st.Close()
	}()

	network := string(cfg.Chain.Network)
	err = st.Cursors.Save(ctx, &domain.Cursor{ChainID: network, Height: height, UpdatedAt: time.Now()})
	if err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to block %d\n", network, height)
}
