package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/cardforge/internal/engine"
	"github.com/zjrosen/cardforge/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run incrementally whenever source scans change",
	Long: `Watches the source directory and triggers an incremental run after
each debounced burst of image changes. An initial run happens at
startup so the output tree is current before watching begins.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := rt.eng.Run(ctx, engine.ModeIncremental)
	if err != nil {
		return err
	}
	cmd.Println(formatSummary(summary))

	w, err := watcher.New(watcher.Config{
		Root:        rt.cfg.SourceDir,
		DebounceDur: rt.cfg.Watch.Debounce,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	onChange, err := w.Start()
	if err != nil {
		return err
	}
	cmd.Println(titleStyle.Render("watching " + rt.cfg.SourceDir))

	for {
		select {
		case <-ctx.Done():
			cmd.Println("stopping")
			return nil
		case <-onChange:
			summary, err := rt.eng.Run(ctx, engine.ModeIncremental)
			if err != nil {
				// A failed pass (unreadable source root mid-edit) is
				// retried on the next change, not fatal to watch mode.
				cmd.Println(errStyle.Render("run failed: " + err.Error()))
				continue
			}
			cmd.Println(formatSummary(summary))
		}
	}
}
