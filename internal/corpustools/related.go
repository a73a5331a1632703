package corpustools

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpora/internal/consolidate"
	"github.com/corpora/internal/corpus"
	"github.com/mark3labs/mcp-go/mcp"
)

// RelatedTool handles the corpus_related MCP tool.
type RelatedTool struct {
	store *corpus.Store
}

// NewRelatedTool creates a RelatedTool.
func NewRelatedTool(store *corpus.Store) *RelatedTool {
	return &RelatedTool{store: store}
}

// Definition returns the MCP tool definition for corpus_related.
func (t *RelatedTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_related",
		mcp.WithDescription(
			"List conversations related to a given conversation, most similar "+
				"first. Relationships come from the last consolidation run.",
		),
		mcp.WithNumber("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation row id"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity score (default: 0.70)"),
		),
	)
}

// Handle processes the corpus_related tool call.
func (t *RelatedTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convID := int64(intArg(req, "conversation_id", 0))
	if convID <= 0 {
		return mcp.NewToolResultError("'conversation_id' is required"), nil
	}
	threshold := floatArg(req, "threshold", consolidate.DefaultThreshold)

	conv, err := t.store.GetConversation(convID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("conversation %d: %v", convID, err)), nil
	}

	rels, err := t.store.RelationshipsFor(convID, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading relationships: %v", err)), nil
	}
	if len(rels) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No related conversations for #%d %q at threshold %.2f.", convID, conv.Title, threshold)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Conversations related to #%d %q:\n\n", convID, conv.Title)
	for _, rel := range rels {
		other := rel.ConversationA
		if other == convID {
			other = rel.ConversationB
		}
		title := "(unknown)"
		if oc, err := t.store.GetConversation(other); err == nil {
			title = oc.Title
		}
		fmt.Fprintf(&b, "- #%d %q — %s (%.3f)\n", other, title, rel.Type, rel.Score)
	}
	return mcp.NewToolResultText(b.String()), nil
}
