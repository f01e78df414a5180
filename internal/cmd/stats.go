package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show system-wide ticket, audit, and usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "stats")
		defer span.End()

		p, err := buildPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer p.Close()

		stats, err := p.orchestrator.SystemStatistics(ctx)
		if err != nil {
			return err
		}

		renderStatistics(cmd.OutOrStdout(), stats)
		return nil
	},
}

func renderStatistics(out io.Writer, s *agent.Statistics) {
	fmt.Fprintf(out, "Tickets: %d total\n", s.Tickets.Total)
	renderCounts(out, "  By status:", s.Tickets.ByStatus)
	renderCounts(out, "  By category:", s.Tickets.ByCategory)

	fmt.Fprintf(out, "\nAudit:\n")
	renderCounts(out, "  Actions by agent:", s.Audit.ByAgent)
	renderCounts(out, "  Actions by type:", s.Audit.ByAction)
	if len(s.Audit.AvgDurationByAgent) > 0 {
		keys := sortedKeys(s.Audit.AvgDurationByAgent)
		fmt.Fprintf(out, "  Avg duration:\n")
		for _, k := range keys {
			fmt.Fprintf(out, "    %-20s %.0fms\n", k, s.Audit.AvgDurationByAgent[k])
		}
	}

	fmt.Fprintf(out, "\nUsage:\n")
	fmt.Fprintf(out, "  Requests:      %d\n", s.Usage.TotalRequests)
	fmt.Fprintf(out, "  Total tokens:  %d\n", s.Usage.TotalTokens())
	fmt.Fprintf(out, "  Total cost:    $%s\n", formatCost(s.Usage.TotalCostUSD()))
	renderCostBreakdown(out, "  Cost by agent:", s.CostByAgent)
}

func renderCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(out, "%s\n", title)
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(out, "    %-20s %d\n", k, counts[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
