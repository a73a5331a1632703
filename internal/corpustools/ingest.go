package corpustools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/ingest"
	"github.com/mark3labs/mcp-go/mcp"
)

// IngestTool handles the corpus_ingest MCP tool.
type IngestTool struct {
	store    *corpus.Store
	ingestor *ingest.Ingestor
}

// NewIngestTool creates an IngestTool.
func NewIngestTool(store *corpus.Store, ingestor *ingest.Ingestor) *IngestTool {
	return &IngestTool{store: store, ingestor: ingestor}
}

// Definition returns the MCP tool definition for corpus_ingest.
func (t *IngestTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_ingest",
		mcp.WithDescription(
			"Ingest a vendor chat export file into the corpus. Re-ingesting the "+
				"same export is safe — previously seen conversations and messages "+
				"are deduplicated, not duplicated.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the export file (e.g. conversations.json)"),
		),
		mcp.WithString("vendor",
			mcp.Required(),
			mcp.Description("Export vendor: chatgpt, claude, gemini, grok"),
		),
		mcp.WithString("source_id",
			mcp.Description("Existing source id to ingest under; omitted, a new source is registered for the file's directory"),
		),
		mcp.WithString("label",
			mcp.Description("Label for a newly registered source"),
		),
	)
}

// Handle processes the corpus_ingest tool call.
func (t *IngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	vendor := req.GetString("vendor", "")
	if !corpus.ValidVendor(vendor) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown vendor %q (expected chatgpt, claude, gemini, or grok)", vendor)), nil
	}

	sourceID := req.GetString("source_id", "")
	if sourceID == "" {
		label := req.GetString("label", vendor+" export")
		src, err := t.store.RegisterSource(vendor, filepath.Dir(path), label)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("registering source: %v", err)), nil
		}
		sourceID = src.ID
	}

	res, err := t.ingestor.IngestFile(ctx, path, vendor, sourceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString("## Ingest Complete\n\n")
	fmt.Fprintf(&b, "- **Source**: %s\n", sourceID)
	fmt.Fprintf(&b, "- **Conversations touched**: %d\n", res.Conversations)
	fmt.Fprintf(&b, "- **New messages**: %d\n", res.Messages)
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "- **Skipped records**: %d\n\n", len(res.Errors))
		for i, e := range res.Errors {
			if i >= 10 {
				fmt.Fprintf(&b, "  … and %d more\n", len(res.Errors)-10)
				break
			}
			fmt.Fprintf(&b, "  - %s (ts %d)\n", e.Message, e.Timestamp)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
