package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okit-dev/okit/history"
	"github.com/okit-dev/okit/registry"
)

// newHistoryCmd creates the "history" command group over the invocation
// history store.
func newHistoryCmd(defaultPath string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded tool invocations",
	}
	cmd.PersistentFlags().String("store-path", defaultPath, "Path to history database (default: ~/.okit/okit.db)")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryClearCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tool invocations",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of records to show (0 = all)")
	return cmd
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistoryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	recs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No invocations recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTOOL\tARGS\tDURATION\tSTATUS")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Tool,
			strings.Join(rec.Args, " "),
			rec.Duration.Round(time.Millisecond),
			rec.Status,
		)
	}
	return w.Flush()
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
}

func openHistoryStore(cmd *cobra.Command) (*history.Store, error) {
	path, _ := cmd.Flags().GetString("store-path")
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

// historyObserver appends a record for every completed tool dispatch.
// Recording is best effort: store failures are logged and never surface
// into the dispatch result.
type historyObserver struct {
	path   string
	logger *slog.Logger
}

func newHistoryObserver(path string, logger *slog.Logger) registry.Observer {
	return &historyObserver{path: path, logger: logger}
}

func (o *historyObserver) ToolInvoked(ctx context.Context, inv registry.Invocation) {
	path := o.path
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			o.logger.Warn("resolving history path failed", "error", err)
			return
		}
	}
	store, err := history.Open(path)
	if err != nil {
		o.logger.Warn("opening history store failed", "error", err)
		return
	}
	defer store.Close()

	status := history.StatusOK
	if inv.Err != nil {
		status = history.StatusFailed
	}
	rec := history.Record{
		Tool:      inv.Tool,
		Args:      inv.Args,
		StartedAt: inv.StartedAt,
		Duration:  inv.Duration,
		Status:    status,
	}
	if err := store.Append(ctx, rec); err != nil {
		o.logger.Warn("recording invocation failed", "error", err)
	}
}
