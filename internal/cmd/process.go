package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
)

var (
	processCustomerID string
	processChaosMode  bool
	processJSON       bool
)

var processCmd = &cobra.Command{
	Use:   "process <message>",
	Short: "Run a customer message through the support pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "process")
		defer span.End()

		p, err := buildPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		result, err := p.orchestrator.ProcessMessage(ctx, processCustomerID, args[0], processChaosMode)
		if err != nil {
			var fault *agent.FaultError
			if errors.As(err, &fault) {
				return fmt.Errorf("pipeline drill failed at %s: %s", fault.Stage, fault.Message)
			}
			return err
		}

		out := cmd.OutOrStdout()
		if processJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		renderResult(out, result)
		return nil
	},
}

func renderResult(out io.Writer, r *agent.Result) {
	fmt.Fprintf(out, "Ticket:     %s\n", r.Ticket.ID)
	fmt.Fprintf(out, "Category:   %s (confidence %.2f)\n", r.Classification.Category, r.Classification.Confidence)
	fmt.Fprintf(out, "Handler:    %s\n", r.HandlerUsed)
	fmt.Fprintf(out, "Status:     %s (priority %d)\n", r.Ticket.Status, r.Ticket.Priority)
	if r.RequiresEscalation {
		fmt.Fprintf(out, "Escalated:  %s\n", r.EscalationReason)
	}
	if len(r.CitedPolicies) > 0 {
		fmt.Fprintf(out, "Policies:\n")
		for _, p := range r.CitedPolicies {
			fmt.Fprintf(out, "  %s\n", p.ShortCitation())
		}
	}
	fmt.Fprintf(out, "\n%s\n", r.Response)
}

func init() {
	processCmd.Flags().StringVar(&processCustomerID, "customer", "cli-user", "customer identifier")
	processCmd.Flags().BoolVar(&processChaosMode, "chaos", false, "inject random stage failures (resilience drill)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "emit the full result as JSON")
	rootCmd.AddCommand(processCmd)
}
