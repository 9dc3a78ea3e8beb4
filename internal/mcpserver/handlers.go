package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *AtelierClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *AtelierClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetDispute fetches a single dispute.
func (h *Handlers) HandleGetDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("dispute_id", "")
	if id == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}

	raw, err := h.client.GetDispute(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get dispute: %v", err)), nil
	}

	text, err := formatDispute(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse dispute: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListDisputes lists disputes with optional filters.
func (h *Handlers) HandleListDisputes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stage := req.GetString("stage", "")
	status := req.GetString("status", "")
	party := req.GetString("party", "")
	cursor := req.GetString("cursor", "")

	raw, err := h.client.ListDisputes(ctx, stage, status, party, cursor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list disputes: %v", err)), nil
	}

	text, err := formatDisputeList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse disputes: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleResolveDispute issues a final ruling on an escalated dispute.
func (h *Handlers) HandleResolveDispute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("dispute_id", "")
	if id == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}
	outcome := req.GetString("outcome", "")
	if outcome == "" {
		return mcp.NewToolResultError("outcome is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	resolve := ResolveRequest{
		Outcome:            outcome,
		Reason:             reason,
		PartialRefundCents: int64(req.GetInt("partial_refund_cents", 0)),
		IssueStrike:        req.GetBool("issue_strike", false),
		AdminNotes:         req.GetString("admin_notes", ""),
	}
	if outcome == "partial_refund" && resolve.PartialRefundCents <= 0 {
		return mcp.NewToolResultError("partial_refund_cents is required for a partial refund"), nil
	}

	raw, err := h.client.ResolveDispute(ctx, id, resolve)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Resolution failed: %v", err)), nil
	}

	text, err := formatDispute(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse dispute: %v", err)), nil
	}

	return mcp.NewToolResultText("Dispute resolved.\n\n" + text), nil
}

// HandleDisputeActivity fetches the activity trail for a dispute.
func (h *Handlers) HandleDisputeActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("dispute_id", "")
	if id == "" {
		return mcp.NewToolResultError("dispute_id is required"), nil
	}
	limit := req.GetInt("limit", 100)

	raw, err := h.client.DisputeActivity(ctx, id, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get activity: %v", err)), nil
	}

	text, err := formatActivity(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse activity: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleDisputeStats returns open dispute counts and escrow exposure.
func (h *Handlers) HandleDisputeStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	var stats map[string]any
	if err := json.Unmarshal(raw, &stats); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Dispute workload:\n")
	if v, ok := getFloat(stats, "openDisputes"); ok {
		fmt.Fprintf(&sb, "  Open disputes: %.0f\n", v)
	}
	if v, ok := getFloat(stats, "escrowAtRiskCents"); ok {
		fmt.Fprintf(&sb, "  Escrow at risk: %s\n", formatCents(int64(v)))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatDispute(raw json.RawMessage) (string, error) {
	var d map[string]any
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dispute %s\n", getString(d, "id"))
	fmt.Fprintf(&sb, "  Transaction: %s\n", disputeRef(d))
	fmt.Fprintf(&sb, "  Category: %s\n", getString(d, "category"))
	fmt.Fprintf(&sb, "  Stage: %s | Status: %s\n", getString(d, "stage"), getString(d, "status"))
	fmt.Fprintf(&sb, "  Filed by %s against %s\n", getString(d, "filedBy"), getString(d, "against"))

	if getString(d, "stage") == "negotiation" {
		fmt.Fprintf(&sb, "  Negotiation deadline: %s\n", formatTime(getString(d, "negotiationDeadline")))
	}
	if desc := getString(d, "description"); desc != "" {
		fmt.Fprintf(&sb, "  Description: %s\n", desc)
	}

	if offer, ok := d["offer"].(map[string]any); ok {
		amount, _ := getFloat(offer, "amountCents")
		fmt.Fprintf(&sb, "  Offer: %s by %s (%s)\n",
			formatCents(int64(amount)), getString(offer, "proposedBy"), getString(offer, "status"))
	}
	if res, ok := d["resolution"].(map[string]any); ok {
		fmt.Fprintf(&sb, "  Resolution: %s (%s)\n", getString(res, "outcome"), getString(res, "reason"))
		if v, ok := getFloat(res, "partialRefundCents"); ok && v > 0 {
			fmt.Fprintf(&sb, "  Refund: %s\n", formatCents(int64(v)))
		}
		if strike, ok := res["strikeIssued"].(bool); ok && strike {
			sb.WriteString("  Strike issued\n")
		}
	}
	return sb.String(), nil
}

func formatDisputeList(raw json.RawMessage) (string, error) {
	var resp struct {
		Disputes   []map[string]any `json:"disputes"`
		NextCursor string           `json:"nextCursor"`
		HasMore    bool             `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected list response format")
	}

	if len(resp.Disputes) == 0 {
		return "No disputes found matching your criteria.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d dispute(s):\n\n", len(resp.Disputes))
	for i, d := range resp.Disputes {
		fmt.Fprintf(&sb, "%d. %s [%s/%s]\n", i+1, getString(d, "id"), getString(d, "stage"), getString(d, "status"))
		fmt.Fprintf(&sb, "   %s | %s vs %s\n", disputeRef(d), getString(d, "filedBy"), getString(d, "against"))
		fmt.Fprintf(&sb, "   %s | filed %s\n", getString(d, "category"), formatTime(getString(d, "createdAt")))
	}
	if resp.HasMore {
		fmt.Fprintf(&sb, "\nMore results available. Pass cursor %q to continue.\n", resp.NextCursor)
	}
	return sb.String(), nil
}

func formatActivity(raw json.RawMessage) (string, error) {
	var resp struct {
		Activity []map[string]any `json:"activity"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected activity response format")
	}

	if len(resp.Activity) == 0 {
		return "No activity recorded for this dispute.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Activity (%d entries):\n", len(resp.Activity))
	for _, rec := range resp.Activity {
		fmt.Fprintf(&sb, "  %s  %s", formatTime(getString(rec, "createdAt")), getString(rec, "eventType"))
		if detail, ok := rec["detail"].(map[string]any); ok && len(detail) > 0 {
			compact, err := json.Marshal(detail)
			if err == nil {
				fmt.Fprintf(&sb, "  %s", compact)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// disputeRef renders the nested transaction reference as "order order_123".
func disputeRef(d map[string]any) string {
	ref, ok := d["ref"].(map[string]any)
	if !ok {
		return "unknown"
	}
	if v := getString(ref, "orderId"); v != "" {
		return "order " + v
	}
	if v := getString(ref, "customizationRequestId"); v != "" {
		return "customization " + v
	}
	return "unknown"
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// getString extracts a string value from a map.
func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map.
func getFloat(m map[string]any, key string) (float64, bool) {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f, true
		}
	}
	return 0, false
}
