package corpustools

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpora/internal/consolidate"
	"github.com/mark3labs/mcp-go/mcp"
)

// ConsolidateTool handles the corpus_consolidate MCP tool. It is only
// registered when an embedding provider is configured.
type ConsolidateTool struct {
	svc *consolidate.Service
}

// NewConsolidateTool creates a ConsolidateTool.
func NewConsolidateTool(svc *consolidate.Service) *ConsolidateTool {
	return &ConsolidateTool{svc: svc}
}

// Definition returns the MCP tool definition for corpus_consolidate.
func (t *ConsolidateTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_consolidate",
		mcp.WithDescription(
			"Run the full consolidation pass: embed messages that lack "+
				"embeddings, rebuild the conversation similarity graph, and fold "+
				"related conversations into bundles with extracted topics. Safe "+
				"to re-run; repeated runs converge.",
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity to record a relationship (default: 0.70)"),
		),
		mcp.WithBoolean("skip_embedding",
			mcp.Description("Reuse existing embeddings instead of generating missing ones"),
		),
	)
}

// Handle processes the corpus_consolidate tool call.
func (t *ConsolidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if threshold := floatArg(req, "threshold", 0); threshold != 0 {
		t.svc.SetThreshold(threshold)
	}

	var b strings.Builder
	b.WriteString("## Consolidation\n\n")

	if !boolArg(req, "skip_embedding", false) {
		embedRes, err := t.svc.EmbedAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("embedding pass: %v", err)), nil
		}
		fmt.Fprintf(&b, "- **Messages embedded**: %d (%d failed)\n", embedRes.Embedded, embedRes.Failed)
	}

	discRes, err := t.svc.DiscoverRelationships(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("relationship discovery: %v", err)), nil
	}
	fmt.Fprintf(&b, "- **Pairs scanned**: %d\n", discRes.PairsScanned)
	fmt.Fprintf(&b, "- **Relationships recorded**: %d\n", discRes.Recorded)

	bundles, err := t.svc.Consolidate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consolidation: %v", err)), nil
	}
	fmt.Fprintf(&b, "- **Bundles**: %d\n\n", len(bundles))

	for i, bundle := range bundles {
		if i >= 20 {
			fmt.Fprintf(&b, "… and %d more bundles\n", len(bundles)-20)
			break
		}
		fmt.Fprintf(&b, "[%d] conversations %v | %d messages", i+1, bundle.Conversations, len(bundle.Messages))
		if len(bundle.Topics) > 0 {
			fmt.Fprintf(&b, " | topics: %s", strings.Join(bundle.Topics, ", "))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
