package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove derived artifacts whose source scan is gone",
	Long: `Sweeps the output tree for derived files whose originating source no
longer exists, removes them along with their registry rows and state
entries, and prunes directories left empty. Original copies in the
output tree are never deleted.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	result, err := rt.eng.Cleanup(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Println(titleStyle.Render("cleanup"))
	cmd.Printf("%s %d\n", labelStyle.Render("removed files"), len(result.RemovedFiles))
	cmd.Printf("%s %d\n", labelStyle.Render("removed dirs"), result.RemovedDirs)
	cmd.Printf("%s %d\n", labelStyle.Render("state entries"), result.DroppedState)
	for _, path := range result.RemovedFiles {
		cmd.Println(warnStyle.Render(fmt.Sprintf("  removed %s", path)))
	}
	return nil
}
