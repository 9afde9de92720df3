// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/poiesic/carebuddy"
	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/search"
	"github.com/poiesic/carebuddy/storage/qdrant"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the CLI. extra service options are applied after the ones
// derived from flags.
func newApp(extra ...carebuddy.ServiceOption) *cli.App {
	defaults := ai.DefaultConfig()
	return &cli.App{
		Name:  "carebuddy",
		Usage: "Answer patient questions from doctor-provided documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./carebuddy_db",
				EnvVars: []string{"CAREBUDDY_DB"},
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Index namespace",
				Value:   core.DefaultNamespace,
				EnvVars: []string{"CAREBUDDY_NAMESPACE"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				Value:   defaults.EmbeddingHost,
				EnvVars: []string{"CAREBUDDY_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   defaults.EmbeddingModel,
				EnvVars: []string{"CAREBUDDY_EMBEDDING_MODEL"},
			},
			&cli.IntFlag{
				Name:    "dimensions",
				Usage:   "Embedding vector dimensions",
				Value:   defaults.Dimensions,
				EnvVars: []string{"CAREBUDDY_DIMENSIONS"},
			},
			&cli.StringFlag{
				Name:    "generation-host",
				Usage:   "Chat completion service host URL",
				Value:   defaults.GenerationHost,
				EnvVars: []string{"CAREBUDDY_GENERATION_HOST"},
			},
			&cli.StringFlag{
				Name:    "generation-model",
				Usage:   "Chat completion model name",
				Value:   defaults.GenerationModel,
				EnvVars: []string{"CAREBUDDY_GENERATION_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for the AI services",
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			&cli.DurationFlag{
				Name:  "request-timeout",
				Usage: "Timeout for a single AI service call",
				Value: defaults.RequestTimeout,
			},
			&cli.StringFlag{
				Name:    "qdrant-host",
				Usage:   "Use the Qdrant server at this host instead of BadgerDB",
				EnvVars: []string{"CAREBUDDY_QDRANT_HOST"},
			},
			&cli.IntFlag{
				Name:    "qdrant-port",
				Usage:   "Qdrant gRPC port",
				Value:   qdrant.DefaultPort,
				EnvVars: []string{"CAREBUDDY_QDRANT_PORT"},
			},
			&cli.StringFlag{
				Name:    "qdrant-collection",
				Usage:   "Qdrant collection name",
				Value:   qdrant.DefaultCollection,
				EnvVars: []string{"CAREBUDDY_QDRANT_COLLECTION"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest document files (.txt, .md, .pdf)",
				ArgsUsage: "FILE...",
				Action:    withService(extra, ingestCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Document ID (single file only; defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "buddy",
						Usage: "Care buddy that owns the documents",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the ingested documents",
				ArgsUsage: "QUESTION...",
				Action:    withService(extra, askCommand),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Show the outcome and sources of the answer",
					},
				},
			},
			{
				Name:      "retrieve",
				Usage:     "Show the chunks nearest to a query",
				ArgsUsage: "QUERY...",
				Action:    withService(extra, retrieveCommand),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of chunks to return",
						Value: search.DefaultK,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Trace each retrieval stage",
					},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete a document's chunks, or every chunk in the namespace",
				Action: withService(extra, deleteCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Document ID to delete",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Delete every chunk in the namespace",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all chunks with the configured embedding model",
				Action: withService(extra, reembedCommand),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
