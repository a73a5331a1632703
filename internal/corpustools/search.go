package corpustools

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/rank"
	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles the corpus_search MCP tool.
type SearchTool struct {
	store *corpus.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *corpus.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for corpus_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_search",
		mcp.WithDescription(
			"Search the conversation corpus with keyword or regex queries. "+
				"Results are ranked by field-weighted relevance with a recency boost.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query — whitespace-separated keywords, or a regular expression when regex=true"),
		),
		mcp.WithBoolean("regex",
			mcp.Description("Treat the query as a single case-insensitive regular expression"),
		),
		mcp.WithString("vendor",
			mcp.Description("Filter by vendor: chatgpt, claude, gemini, grok"),
		),
		mcp.WithString("role",
			mcp.Description("Filter by role: user, assistant, tool, system"),
		),
		mcp.WithNumber("date_from",
			mcp.Description("Only messages at or after this epoch-millisecond timestamp"),
		),
		mcp.WithNumber("date_to",
			mcp.Description("Only messages at or before this epoch-millisecond timestamp"),
		),
		mcp.WithString("sources",
			mcp.Description("Comma-separated source ids to search within"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 50)"),
		),
	)
}

// Handle processes the corpus_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	limit := intArg(req, "limit", 10)
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	facets := rank.Facets{
		Vendor:   req.GetString("vendor", ""),
		Role:     req.GetString("role", ""),
		DateFrom: int64(floatArg(req, "date_from", 0)),
		DateTo:   int64(floatArg(req, "date_to", 0)),
	}
	if raw := req.GetString("sources", ""); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				facets.SourceIDs = append(facets.SourceIDs, id)
			}
		}
	}

	docs, err := BuildDocuments(t.store)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading documents: %v", err)), nil
	}

	results := rank.Search(docs, query, facets, rank.Options{
		Regex: boolArg(req, "regex", false),
		NowMs: corpus.Now(),
	})
	if len(results) == 0 {
		return mcp.NewToolResultText("No messages matched your query."), nil
	}

	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching messages (showing %d):\n\n", total, len(results))
	for i, r := range results {
		title := r.Document.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "[%d] score %.2f | conversation #%d %q | %s/%s\n    %s\n\n",
			i+1, r.Score,
			r.Document.ConversationID, title,
			r.Document.Vendor, r.Document.Role,
			snippet(r.Document),
		)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func snippet(doc rank.Document) string {
	text := doc.Body
	if text == "" {
		text = doc.SystemText
	}
	if text == "" {
		text = doc.ToolJSON
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 200 {
		text = text[:200] + "…"
	}
	return text
}
