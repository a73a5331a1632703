package corpustools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corpora/internal/corpus"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the corpus_stats MCP tool.
type StatsTool struct {
	store *corpus.Store
}

// NewStatsTool creates a StatsTool with the given corpus store.
func NewStatsTool(store *corpus.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for corpus_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_stats",
		mcp.WithDescription(
			"Show corpus statistics — total conversations, messages, registered sources, and last update time.",
		),
	)
}

// Handle processes the corpus_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.CorpusStats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Corpus Statistics\n\n")
	sb.WriteString(fmt.Sprintf("- **Conversations**: %d\n", stats.TotalConversations))
	sb.WriteString(fmt.Sprintf("- **Messages**: %d\n", stats.TotalMessages))

	if len(stats.Sources) > 0 {
		sb.WriteString(fmt.Sprintf("- **Sources** (%d):\n", len(stats.Sources)))
		for _, src := range stats.Sources {
			sb.WriteString(fmt.Sprintf("  - %s [%s] %s\n", src.Label, src.Vendor, src.Root))
		}
	} else {
		sb.WriteString("- **Sources**: none\n")
	}

	if stats.LastUpdated > 0 {
		sb.WriteString(fmt.Sprintf("- **Last updated**: %s\n",
			time.UnixMilli(stats.LastUpdated).UTC().Format(time.RFC3339)))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
