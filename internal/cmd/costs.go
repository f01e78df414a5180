package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

var costsByModel bool

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show token usage and cost totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "costs")
		defer span.End()

		p, err := buildPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer p.Close()

		summary, err := p.costs.Summary(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		renderUsageSummary(out, summary)

		if costsByModel {
			byModel, err := p.costs.CostByModel(ctx)
			if err != nil {
				return err
			}
			renderCostBreakdown(out, "By model:", byModel)
			return nil
		}

		byAgent, err := p.costs.CostByAgent(ctx)
		if err != nil {
			return err
		}
		renderCostBreakdown(out, "By agent:", byAgent)
		return nil
	},
}

func renderUsageSummary(out io.Writer, s *store.UsageSummary) {
	fmt.Fprintf(out, "Requests:      %d\n", s.TotalRequests)
	fmt.Fprintf(out, "Input tokens:  %d (cached %d)\n", s.TotalInputTokens, s.TotalCachedTokens)
	fmt.Fprintf(out, "Output tokens: %d\n", s.TotalOutputTokens)
	fmt.Fprintf(out, "Total cost:    $%s\n", formatCost(s.TotalCostUSD()))
}

func renderCostBreakdown(out io.Writer, title string, byKey map[string]float64) {
	if len(byKey) == 0 {
		return
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "\n%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-28s $%s\n", k, formatCost(byKey[k]))
	}
}

// formatCost formats a dollar amount: six decimals, with a floor marker
// for amounts below a tenth of a cent.
func formatCost(c float64) string {
	if c > 0 && c < 0.0001 {
		return "< 0.0001"
	}
	return fmt.Sprintf("%.6f", c)
}

func init() {
	costsCmd.Flags().BoolVar(&costsByModel, "by-model", false, "break down cost by model instead of agent")
	rootCmd.AddCommand(costsCmd)
}
