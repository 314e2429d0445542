package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/cardforge/internal/registry"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the artifact registry",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsFormat, "format", "f", "text",
		"output format: text or yaml")
	rootCmd.AddCommand(statsCmd)
}

// statsReport is the yaml shape of the stats output.
type statsReport struct {
	Total     int            `yaml:"total"`
	Originals int            `yaml:"originals"`
	Derived   int            `yaml:"derived"`
	Cards     int            `yaml:"cards"`
	PerSet    map[string]int `yaml:"per_set"`
	PerKind   map[string]int `yaml:"per_kind"`
}

func runStats(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	stats, err := rt.eng.Stats(cmd.Context())
	if err != nil {
		return err
	}

	switch statsFormat {
	case "yaml":
		out, err := yaml.Marshal(statsReport{
			Total:     stats.Total,
			Originals: stats.Originals,
			Derived:   stats.Derived,
			Cards:     stats.Cards,
			PerSet:    stats.PerSet,
			PerKind:   stats.PerKind,
		})
		if err != nil {
			return err
		}
		cmd.Print(string(out))
		return nil
	case "text":
		cmd.Println(formatStats(stats))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or yaml)", statsFormat)
	}
}

func formatStats(s registry.Stats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("registry"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("artifacts"), s.Total))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("originals"), s.Originals))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("derived"), s.Derived))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("cards"), s.Cards))

	b.WriteString(titleStyle.Render("per set"))
	b.WriteString("\n")
	for _, set := range sortedKeys(s.PerSet) {
		b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render(set), s.PerSet[set]))
	}

	b.WriteString(titleStyle.Render("per kind"))
	b.WriteString("\n")
	for _, kind := range sortedKeys(s.PerKind) {
		b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render(kind), s.PerKind[kind]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
