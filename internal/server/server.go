// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on them. No business logic
// lives here — only wiring.
package server

import (
	"fmt"

	"github.com/corpora/internal/config"
	"github.com/corpora/internal/consolidate"
	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/corpustools"
	"github.com/corpora/internal/embed/openai"
	"github.com/corpora/internal/ingest"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all corpus tools
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the store's database connection
// and must be called on shutdown (typically via defer). It is always
// non-nil.
func New(cfg *config.Config, log zerolog.Logger) (*server.MCPServer, func(), error) {
	store, err := corpus.Open(corpus.Config{DataDir: cfg.Store.DataDir})
	if err != nil {
		return nil, noop, fmt.Errorf("opening corpus store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("corpus store close")
		}
	}

	s := server.NewMCPServer(
		"corpora",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	ingestor := ingest.New(store, log)

	ingestTool := corpustools.NewIngestTool(store, ingestor)
	s.AddTool(ingestTool.Definition(), ingestTool.Handle)

	searchTool := corpustools.NewSearchTool(store)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	relatedTool := corpustools.NewRelatedTool(store)
	s.AddTool(relatedTool.Definition(), relatedTool.Handle)

	statsTool := corpustools.NewStatsTool(store)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	snapshotTool := corpustools.NewSnapshotTool(store)
	s.AddTool(snapshotTool.Definition(), snapshotTool.Handle)

	// Consolidation needs an embedding provider. Without an API key the
	// rest of the server keeps working; only corpus_consolidate is
	// withheld.
	if cfg.Embedding.APIKey == "" {
		log.Warn().Msg("no embedding api key configured, corpus_consolidate disabled")
		return s, cleanup, nil
	}

	embedder := openai.New(cfg.Embedding.APIKey,
		openai.WithModel(cfg.Embedding.Model),
		openai.WithDimension(cfg.Embedding.Dimension),
	)
	svc := consolidate.New(store, embedder, log)
	svc.SetThreshold(cfg.Consolidate.Threshold)

	consolidateTool := corpustools.NewConsolidateTool(svc)
	s.AddTool(consolidateTool.Definition(), consolidateTool.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when store initialization failed.
func noop() {}

// serverInstructions tells the connected assistant how to use the corpus.
func serverInstructions() string {
	return `You have access to Corpora, a canonical corpus of the user's AI chat
history imported from ChatGPT, Claude, Gemini, and Grok exports.

## Tools

- corpus_ingest: import a vendor export file. Re-running an import is
  always safe — conversations and messages are deduplicated.
- corpus_search: ranked keyword or regex search with facet filters
  (vendor, role, date range, sources). Use this to find past discussions.
- corpus_related: conversations similar to a given one, from the last
  consolidation run.
- corpus_consolidate: rebuild the similarity graph and merge related
  conversations into topic-labeled bundles. Run it after large imports.
- corpus_stats: corpus totals and registered sources.
- corpus_snapshot: export the corpus to a single file, or restore from one.

## Guidance

- Prefer corpus_search before answering questions about what the user
  has previously discussed or decided.
- After ingesting new exports, suggest corpus_consolidate so
  relationships and topics reflect the new data.
- corpus_related only returns results after a consolidation run has
  recorded relationships.
- Snapshot restore replaces the entire live corpus — confirm with the
  user before restoring.`
}
