package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/cardforge/internal/engine"
)

var incremental bool

var augmentCmd = &cobra.Command{
	Use:   "augment",
	Short: "Derive augmented variants from the source scans",
	Long: `Scans the source directory, copies each scan into the output tree and
derives the configured number of augmented variants per scan.

By default every artifact is rebuilt. With --incremental, slots whose
source content hash and output are already recorded are skipped.`,
	RunE: runAugment,
}

func init() {
	augmentCmd.Flags().BoolVarP(&incremental, "incremental", "i", false,
		"skip artifacts whose source is unchanged")
	augmentCmd.Flags().Int("count", 0, "override augmentations per source")
	augmentCmd.Flags().Int64("seed", 0, "override the transform random seed")

	_ = viper.BindPFlag("augmentation.count", augmentCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("augmentation.seed", augmentCmd.Flags().Lookup("seed"))

	rootCmd.AddCommand(augmentCmd)
}

func runAugment(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	mode := engine.ModeFull
	if incremental {
		mode = engine.ModeIncremental
	}

	summary, err := rt.eng.Run(cmd.Context(), mode)
	if err != nil {
		return err
	}

	cmd.Println(formatSummary(summary))

	// Per-artifact failures are reported, not fatal: the rest of the run
	// completed and the state index reflects it.
	return nil
}

func formatSummary(s *engine.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("run %s (%s)", s.RunID, s.Mode)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("sources"), s.Sources))
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("produced"), okStyle.Render(fmt.Sprintf("%d", s.Produced))))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("skipped"), s.Skipped))
	if s.Failed > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("failed"), errStyle.Render(fmt.Sprintf("%d", s.Failed))))
		for _, f := range s.Failures {
			b.WriteString(errStyle.Render(fmt.Sprintf("  %s (%s): %v", f.Source, f.Kind, f.Err)))
			b.WriteString("\n")
		}
	}
	b.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("duration"), s.Duration.Round(time.Millisecond)))
	return b.String()
}
