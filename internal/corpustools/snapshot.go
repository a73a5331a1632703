package corpustools

import (
	"context"
	"fmt"

	"github.com/corpora/internal/corpus"
	"github.com/mark3labs/mcp-go/mcp"
)

// SnapshotTool handles the corpus_snapshot MCP tool.
type SnapshotTool struct {
	store *corpus.Store
}

// NewSnapshotTool creates a SnapshotTool.
func NewSnapshotTool(store *corpus.Store) *SnapshotTool {
	return &SnapshotTool{store: store}
}

// Definition returns the MCP tool definition for corpus_snapshot.
func (t *SnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("corpus_snapshot",
		mcp.WithDescription(
			"Export the corpus to a snapshot file, or restore it from one. "+
				"The snapshot is the storage engine's native database file. "+
				"Restoring replaces the entire live corpus.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Snapshot file path"),
		),
		mcp.WithBoolean("restore",
			mcp.Description("Restore from the snapshot instead of exporting to it"),
		),
	)
}

// Handle processes the corpus_snapshot tool call.
func (t *SnapshotTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	if boolArg(req, "restore", false) {
		if err := t.store.Restore(path); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("restore failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Corpus restored from %s.", path)), nil
	}

	if err := t.store.Snapshot(path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Corpus snapshot written to %s.", path)), nil
}
