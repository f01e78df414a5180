package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

var ticketJSON bool

var ticketCmd = &cobra.Command{
	Use:   "ticket <id>",
	Short: "Show a ticket with its audit trail and token costs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "ticket")
		defer span.End()

		p, err := buildPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer p.Close()

		detail, err := p.orchestrator.TicketDetails(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if ticketJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(detail)
		}
		renderTicketDetail(out, detail)
		return nil
	},
}

func renderTicketDetail(out io.Writer, d *agent.TicketDetail) {
	t := d.Ticket
	fmt.Fprintf(out, "Ticket %s\n", t.ID)
	fmt.Fprintf(out, "  Customer:  %s\n", t.CustomerID)
	fmt.Fprintf(out, "  Category:  %s\n", t.Category)
	fmt.Fprintf(out, "  Status:    %s (priority %d)\n", t.Status, t.Priority)
	fmt.Fprintf(out, "  Created:   %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.ResolvedAt != nil {
		fmt.Fprintf(out, "  Resolved:  %s\n", t.ResolvedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "  Message:   %s\n", t.CustomerMessage)
	if t.AgentResponse != "" {
		fmt.Fprintf(out, "  Response (%s):\n    %s\n", t.HandlerAgent, t.AgentResponse)
	}

	if len(d.AuditTrail) > 0 {
		fmt.Fprintf(out, "\nAudit trail (%d entries):\n", len(d.AuditTrail))
		for _, e := range d.AuditTrail {
			status := "ok"
			if !e.Success {
				status = "FAILED"
			}
			fmt.Fprintf(out, "  %s  %-16s %-12s %-6s %dms\n",
				e.CreatedAt.Format("15:04:05"), e.AgentName, e.Action, status, e.DurationMS)
			if e.ErrorMessage != "" {
				fmt.Fprintf(out, "    error: %s\n", e.ErrorMessage)
			}
		}
	}

	if len(d.TokenUsage) > 0 {
		fmt.Fprintf(out, "\nToken usage:\n")
		for _, u := range d.TokenUsage {
			fmt.Fprintf(out, "  %-16s %-28s in=%d out=%d cached=%d $%s\n",
				u.AgentName, u.ModelName, u.InputTokens, u.OutputTokens, u.CachedTokens,
				formatCost(u.TotalCostUSD()))
		}
	}
	fmt.Fprintf(out, "\nTotal cost: $%s\n", formatCost(d.TotalCostUSD))
}

var ticketsStatus string

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List recent tickets by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "tickets")
		defer span.End()

		p, err := buildPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer p.Close()

		tickets, err := p.db.TicketsByStatus(ctx, store.Status(ticketsStatus), 50)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(tickets) == 0 {
			fmt.Fprintf(out, "No %s tickets.\n", ticketsStatus)
			return nil
		}
		for _, t := range tickets {
			preview := t.CustomerMessage
			if len(preview) > 60 {
				preview = preview[:60] + "..."
			}
			fmt.Fprintf(out, "%s  %-10s p%d  %-12s %s\n",
				t.CreatedAt.Format("2006-01-02 15:04"), t.Category, t.Priority, t.CustomerID, preview)
		}
		return nil
	},
}

func init() {
	ticketCmd.Flags().BoolVar(&ticketJSON, "json", false, "emit the full detail as JSON")
	ticketsCmd.Flags().StringVar(&ticketsStatus, "status", "open", "ticket status to list (open, in_progress, resolved, closed, escalated)")
	rootCmd.AddCommand(ticketCmd)
	rootCmd.AddCommand(ticketsCmd)
}
