package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/carebuddy"
	"github.com/poiesic/carebuddy/ai"
	"github.com/poiesic/carebuddy/core"
	"github.com/poiesic/carebuddy/extract"
	"github.com/poiesic/carebuddy/reembed"
	"github.com/urfave/cli/v2"
)

type serviceAction func(c *cli.Context, svc *carebuddy.Service) error

// withService opens the service described by the global flags around action.
func withService(extra []carebuddy.ServiceOption, action serviceAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := openService(c, extra)
		if err != nil {
			return err
		}
		defer svc.Close()
		return action(c, svc)
	}
}

func openService(c *cli.Context, extra []carebuddy.ServiceOption) (*carebuddy.Service, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGenerationHost(c.String("generation-host")),
		ai.WithGenerationModel(c.String("generation-model")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithDimensions(c.Int("dimensions")),
		ai.WithRequestTimeout(c.Duration("request-timeout")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts := []carebuddy.ServiceOption{
		carebuddy.WithAIConfig(aiConfig),
		carebuddy.WithNamespace(c.String("namespace")),
	}
	if host := c.String("qdrant-host"); host != "" {
		opts = append(opts, carebuddy.WithQdrant(host, c.Int("qdrant-port"), c.String("qdrant-collection")))
	}
	opts = append(opts, extra...)

	svc, err := carebuddy.NewService(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return svc, nil
}

func ingestCommand(c *cli.Context, svc *carebuddy.Service) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}
	if c.String("id") != "" && len(paths) > 1 {
		return errors.New("--id can only be used with a single file")
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	out := c.App.Writer
	report := func(path string, n int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			fmt.Fprintf(out, "failed %s: %v\n", path, err)
			return
		}
		fmt.Fprintf(out, "ingested %s: %d chunks\n", path, n)
	}

	for _, path := range paths {
		text, err := extract.FromFile(path)
		if err != nil {
			report(path, 0, err)
			continue
		}
		docID := c.String("id")
		if docID == "" {
			docID = extract.DocumentID(path)
		}
		doc := &core.Document{
			ID:         docID,
			BuddyID:    c.String("buddy"),
			Text:       text,
			UploadedAt: time.Now().UTC(),
		}

		wg.Add(1)
		err = svc.Pipeline().Submit(c.Context, doc, func(n int, err error) {
			defer wg.Done()
			report(path, n, err)
		})
		if err != nil {
			wg.Done()
			report(path, 0, err)
		}
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(paths))
	}
	return nil
}

func askCommand(c *cli.Context, svc *carebuddy.Service) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	resp := svc.Respond(c.Context, question, nil)
	out := c.App.Writer
	fmt.Fprintln(out, resp.Text)
	if c.Bool("verbose") {
		fmt.Fprintf(out, "\noutcome: %s\n", resp.Outcome)
		for n, src := range resp.Sources {
			fmt.Fprintf(out, "[%d] %s (%.3f)\n", n+1, src.Chunk.Key(), src.Score)
		}
		if resp.Err != nil {
			fmt.Fprintf(out, "error: %v\n", resp.Err)
		}
	}
	return nil
}

func retrieveCommand(c *cli.Context, svc *carebuddy.Service) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	var monitor *traceMonitor
	if c.Bool("verbose") {
		monitor = &traceMonitor{w: c.App.ErrWriter}
	}
	results, err := svc.Retrieve(c.Context, query, c.Int("k"), monitorOrNil(monitor))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(out, "%d: %s [%0.3f] %q\n", i, hit.Chunk.Key(), hit.Score, hit.Chunk.Text)
	}
	return nil
}

func deleteCommand(c *cli.Context, svc *carebuddy.Service) error {
	docID, all := c.String("id"), c.Bool("all")
	switch {
	case docID != "" && all:
		return errors.New("use either --id or --all, not both")
	case all:
		n, err := svc.DeleteNamespace(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %d chunks from namespace %s\n", n, svc.Namespace())
	case docID != "":
		n, err := svc.DeleteDocument(c.Context, docID)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %d chunks of %s\n", n, docID)
	default:
		return errors.New("one of --id or --all is required")
	}
	return nil
}

func reembedCommand(c *cli.Context, svc *carebuddy.Service) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	progress := c.App.ErrWriter
	if progress == nil {
		progress = io.Discard
	}
	if _, err := svc.Reembed(c.Context, reembedConfig, progress); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
