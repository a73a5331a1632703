// Corpora: canonical AI-chat corpus engine.
//
// Ingests exported chat history from ChatGPT, Claude, Gemini, and Grok
// into one deduplicated corpus, searchable and consolidable, and exposes
// it to AI assistants over MCP.
//
// Usage:
//
//	corpora serve                         # Start MCP server (stdio transport)
//	corpora ingest --vendor chatgpt FILE  # Import an export file
//	corpora search QUERY                  # Ranked search
//	corpora consolidate                   # Rebuild similarity graph and bundles
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/corpora/internal/config"
	"github.com/corpora/internal/consolidate"
	"github.com/corpora/internal/corpus"
	"github.com/corpora/internal/corpustools"
	"github.com/corpora/internal/embed/openai"
	"github.com/corpora/internal/ingest"
	"github.com/corpora/internal/logging"
	"github.com/corpora/internal/rank"
	"github.com/corpora/internal/server"
)

func main() {
	// Best-effort: a missing .env is not an error.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "corpora",
		Usage:   "Canonical, deduplicated corpus of your AI chat history",
		Version: server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			searchCommand(),
			relatedCommand(),
			consolidateCommand(),
			statsCommand(),
			snapshotCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the root logger. Every command
// goes through here so flags and env behave identically across them.
func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, zerolog.Nop(), err
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	// stdout stays clean for command output (and for MCP stdio).
	return cfg, logging.New(os.Stderr, cfg.Log.Level), nil
}

func openStore(cfg *config.Config) (*corpus.Store, error) {
	return corpus.Open(corpus.Config{DataDir: cfg.Store.DataDir})
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so long
// passes stop within one unit of work.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the MCP server (stdio transport)",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}

			s, cleanup, err := server.New(cfg, log)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			log.Info().Str("data_dir", cfg.Store.DataDir).Msg("corpora mcp server starting")
			return mcpserver.ServeStdio(s)
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Import a vendor export file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "vendor",
				Usage:    "Export vendor: chatgpt, claude, gemini, grok",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Existing source id to ingest under",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label for a newly registered source",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one export file argument")
			}
			path := c.Args().First()
			vendor := c.String("vendor")
			if !corpus.ValidVendor(vendor) {
				return fmt.Errorf("unknown vendor %q", vendor)
			}

			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sourceID := c.String("source")
			if sourceID == "" {
				label := c.String("label")
				if label == "" {
					label = vendor + " export"
				}
				src, err := store.RegisterSource(vendor, path, label)
				if err != nil {
					return err
				}
				sourceID = src.ID
				fmt.Printf("Registered source %s (%s)\n", src.ID, label)
			}

			ctx, cancel := signalContext()
			defer cancel()

			res, err := ingest.New(store, log).IngestFile(ctx, path, vendor, sourceID)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d new messages across %d conversations\n", res.Messages, res.Conversations)
			for _, e := range res.Errors {
				fmt.Printf("  skipped: %s (ts %d)\n", e.Message, e.Timestamp)
			}
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the corpus",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "regex", Usage: "Treat the query as a regular expression"},
			&cli.StringFlag{Name: "vendor", Usage: "Filter by vendor"},
			&cli.StringFlag{Name: "role", Usage: "Filter by role"},
			&cli.Int64Flag{Name: "from", Usage: "Only messages at or after this epoch-ms timestamp"},
			&cli.Int64Flag{Name: "to", Usage: "Only messages at or before this epoch-ms timestamp"},
			&cli.StringFlag{Name: "sources", Usage: "Comma-separated source ids"},
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "Max results"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("expected a query argument")
			}
			query := strings.Join(c.Args().Slice(), " ")

			cfg, _, err := setup(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := corpustools.BuildDocuments(store)
			if err != nil {
				return err
			}

			facets := rank.Facets{
				Vendor:   c.String("vendor"),
				Role:     c.String("role"),
				DateFrom: c.Int64("from"),
				DateTo:   c.Int64("to"),
			}
			if raw := c.String("sources"); raw != "" {
				for _, id := range strings.Split(raw, ",") {
					if id = strings.TrimSpace(id); id != "" {
						facets.SourceIDs = append(facets.SourceIDs, id)
					}
				}
			}

			results := rank.Search(docs, query, facets, rank.Options{
				Regex: c.Bool("regex"),
				NowMs: corpus.Now(),
			})
			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			limit := c.Int("limit")
			if limit > 0 && len(results) > limit {
				results = results[:limit]
			}
			for i, r := range results {
				text := r.Document.Body
				if text == "" {
					text = r.Document.SystemText
				}
				if text == "" {
					text = r.Document.ToolJSON
				}
				text = strings.Join(strings.Fields(text), " ")
				if len(text) > 120 {
					text = text[:120] + "…"
				}
				fmt.Printf("%2d. [%.2f] #%d %s (%s/%s)\n    %s\n",
					i+1, r.Score, r.Document.ConversationID, r.Document.Title,
					r.Document.Vendor, r.Document.Role, text)
			}
			return nil
		},
	}
}

func relatedCommand() *cli.Command {
	return &cli.Command{
		Name:      "related",
		Usage:     "List conversations related to a conversation",
		ArgsUsage: "CONVERSATION_ID",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "threshold", Value: consolidate.DefaultThreshold, Usage: "Minimum similarity score"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected a conversation id argument")
			}
			convID, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("bad conversation id: %w", err)
			}

			cfg, _, err := setup(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rels, err := store.RelationshipsFor(convID, c.Float64("threshold"))
			if err != nil {
				return err
			}
			if len(rels) == 0 {
				fmt.Println("No related conversations.")
				return nil
			}
			for _, rel := range rels {
				other := rel.ConversationA
				if other == convID {
					other = rel.ConversationB
				}
				title := ""
				if conv, err := store.GetConversation(other); err == nil {
					title = conv.Title
				}
				fmt.Printf("#%d %s — %s (%.3f)\n", other, title, rel.Type, rel.Score)
			}
			return nil
		},
	}
}

func consolidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "consolidate",
		Usage: "Embed messages, rebuild the similarity graph, and merge related conversations",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "threshold", Usage: "Minimum similarity to record a relationship"},
			&cli.BoolFlag{Name: "skip-embedding", Usage: "Reuse existing embeddings only"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			if cfg.Embedding.APIKey == "" {
				return fmt.Errorf("no embedding api key configured (set embedding.api_key or OPENAI_API_KEY)")
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			embedder := openai.New(cfg.Embedding.APIKey,
				openai.WithModel(cfg.Embedding.Model),
				openai.WithDimension(cfg.Embedding.Dimension),
			)
			svc := consolidate.New(store, embedder, log)
			svc.SetThreshold(cfg.Consolidate.Threshold)
			if t := c.Float64("threshold"); t != 0 {
				svc.SetThreshold(t)
			}

			ctx, cancel := signalContext()
			defer cancel()

			if !c.Bool("skip-embedding") {
				embedRes, err := svc.EmbedAll(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Embedded %d messages (%d failed)\n", embedRes.Embedded, embedRes.Failed)
			}

			discRes, err := svc.DiscoverRelationships(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Scanned %d pairs, recorded %d relationships\n", discRes.PairsScanned, discRes.Recorded)

			bundles, err := svc.Consolidate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Consolidated into %d bundles\n", len(bundles))
			for i, b := range bundles {
				fmt.Printf("%3d. conversations %v, %d messages", i+1, b.Conversations, len(b.Messages))
				if len(b.Topics) > 0 {
					fmt.Printf(", topics: %s", strings.Join(b.Topics, ", "))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show corpus statistics",
		Action: func(c *cli.Context) error {
			cfg, _, err := setup(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.CorpusStats()
			if err != nil {
				return err
			}
			fmt.Printf("Conversations: %d\n", stats.TotalConversations)
			fmt.Printf("Messages:      %d\n", stats.TotalMessages)
			fmt.Printf("Sources:       %d\n", len(stats.Sources))
			for _, src := range stats.Sources {
				fmt.Printf("  %s  %s [%s] %s\n", src.ID, src.Label, src.Vendor, src.Root)
			}
			return nil
		},
	}
}

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshot",
		Usage:     "Export the corpus to a snapshot file, or restore from one",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "restore", Usage: "Restore from the snapshot instead of exporting"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected a snapshot file argument")
			}
			path := c.Args().First()

			cfg, _, err := setup(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if c.Bool("restore") {
				if err := store.Restore(path); err != nil {
					return err
				}
				fmt.Printf("Corpus restored from %s\n", path)
				return nil
			}
			if err := store.Snapshot(path); err != nil {
				return err
			}
			fmt.Printf("Snapshot written to %s\n", path)
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   "corpora.toml",
						Usage:   "Output file path",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("output")
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("Created configuration file at %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Validate the configuration file",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					if err := config.Validate(cfg); err != nil {
						return fmt.Errorf("invalid configuration: %w", err)
					}
					fmt.Println("Configuration is valid.")
					return nil
				},
			},
		},
	}
}
