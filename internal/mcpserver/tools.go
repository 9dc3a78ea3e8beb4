package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Atelier admin MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetDispute = mcp.NewTool("get_dispute",
	mcp.WithDescription(
		"Fetch a single dispute by ID. "+
			"Returns the full record: parties, category, stage, pending offer, "+
			"resolution, and the negotiation deadline."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute ID (e.g. 'dsp_a1b2c3')")),
)

var ToolListDisputes = mcp.NewTool("list_disputes",
	mcp.WithDescription(
		"Browse disputes, newest first. Filter by stage to find cases awaiting "+
			"an admin ruling, or by party to review one user's dispute history. "+
			"Results are paginated; pass the returned cursor to fetch the next page."),
	mcp.WithString("stage",
		mcp.Description("Filter by stage"),
		mcp.Enum("negotiation", "admin_review", "resolved")),
	mcp.WithString("status",
		mcp.Description("Filter by status"),
		mcp.Enum("open", "closed")),
	mcp.WithString("party",
		mcp.Description("Only disputes where this user ID is the filer or the counterparty")),
	mcp.WithString("cursor",
		mcp.Description("Pagination cursor from a previous list_disputes result")),
)

var ToolResolveDispute = mcp.NewTool("resolve_dispute",
	mcp.WithDescription(
		"Issue a final ruling on an escalated dispute. Only disputes in the "+
			"admin_review stage can be resolved. 'refunded' returns the full escrow "+
			"to the customer, 'released' pays the counterparty in full, "+
			"'partial_refund' splits it, and 'dismissed' closes the case without "+
			"moving funds. Optionally issues a reputation strike against the party "+
			"the ruling went against."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute ID to resolve")),
	mcp.WithString("outcome",
		mcp.Required(),
		mcp.Description("The ruling"),
		mcp.Enum("refunded", "partial_refund", "released", "dismissed")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Human-readable justification recorded on the dispute")),
	mcp.WithNumber("partial_refund_cents",
		mcp.Description("Refund amount in cents; required when outcome is 'partial_refund'")),
	mcp.WithBoolean("issue_strike",
		mcp.Description("Record a reputation strike against the losing party")),
	mcp.WithString("admin_notes",
		mcp.Description("Internal notes, not shown to the parties")),
)

var ToolDisputeActivity = mcp.NewTool("dispute_activity",
	mcp.WithDescription(
		"Fetch the chronological activity trail for a dispute: filing, offers, "+
			"responses, escalation, and resolution. Use this to understand the "+
			"history of a case before ruling on it."),
	mcp.WithString("dispute_id",
		mcp.Required(),
		mcp.Description("The dispute ID")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 100)")),
)

var ToolDisputeStats = mcp.NewTool("dispute_stats",
	mcp.WithDescription(
		"Get current workload numbers: how many disputes are open and how much "+
			"escrow money is frozen underneath them."),
)
