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
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/mimir"
	"github.com/poiesic/mimir/config"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/embedding"
	"github.com/poiesic/mimir/keyword"
	"github.com/poiesic/mimir/search"
	"github.com/poiesic/mimir/storage"
	"github.com/poiesic/mimir/vectorstore"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mimir",
		Usage: "Knowledge store with keyword and semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"MIMIR_CONFIG"},
				Value:   "mimir.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Compute or refresh document embeddings",
				Action: refreshCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to BadgerDB database directory",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report what would be refreshed without writing",
					},
					&cli.StringSliceFlag{
						Name:    "document",
						Aliases: []string{"d"},
						Usage:   "Refresh only this document id (repeatable)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent encoder workers",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum encoder attempts per document",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
					&cli.Float64Flag{
						Name:  "rate",
						Usage: "Maximum encoder calls per second (0 = unlimited)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.StringFlag{
						Name:  "embedding-provider",
						Usage: "Embedding provider (openai, local)",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.StringFlag{
						Name:  "embedding-version",
						Usage: "Embedding model version",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search documents",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to BadgerDB database directory",
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Search mode (keyword, semantic, auto)",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
					},
					&cli.StringFlag{
						Name:    "topic",
						Aliases: []string{"t"},
						Usage:   "Restrict results to a topic, by name or id",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Restrict results to documents carrying this tag (repeatable)",
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Drop semantic hits scoring below this threshold",
					},
				},
			},
			{
				Name:      "suggest",
				Usage:     "Suggest query terms from tags and titles",
				ArgsUsage: "[PREFIX]",
				Action:    suggestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "Path to BadgerDB database directory",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of suggestions",
						Value: 10,
					},
				},
			},
		},
	}
}

// loadEnv loads an env file when present. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}
	overrides := map[string]*string{
		"embedding-provider": &cfg.Embedding.Provider,
		"embedding-host":     &cfg.Embedding.Host,
		"embedding-model":    &cfg.Embedding.Model,
		"embedding-version":  &cfg.Embedding.Version,
		"mode":               &cfg.Search.Mode,
	}
	for name, field := range overrides {
		if c.IsSet(name) {
			*field = c.String(name)
		}
	}
	if c.IsSet("top-k") {
		cfg.Search.TopK = c.Int("top-k")
	}
	if c.IsSet("min-similarity") {
		threshold := float32(c.Float64("min-similarity"))
		cfg.Search.MinSimilarity = &threshold
	}
	if c.IsSet("workers") {
		cfg.Refresh.Workers = c.Int("workers")
	}
	if c.IsSet("max-retries") {
		cfg.Refresh.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Refresh.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("rate") {
		cfg.Refresh.RateLimit = c.Float64("rate")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDatabase(cfg *config.Config) (*mimir.Database, error) {
	db, err := mimir.NewDatabase(cfg.Database.Path, mimir.FromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func refreshCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	targets, err := parseIDs(c.StringSlice("document"))
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewPipeline(
		embedding.WithWorkers(cfg.Refresh.Workers),
		embedding.WithMaxRetries(cfg.Refresh.MaxRetries),
		embedding.WithRetryDelay(cfg.Refresh.RetryDelay),
		embedding.WithRateLimit(cfg.Refresh.RateLimit, cfg.Refresh.RateBurst),
		embedding.WithProgress(c.App.ErrWriter, c.Int("report-interval")),
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", pipeline.Model())
	fmt.Fprintln(c.App.ErrWriter)

	report, err := pipeline.Refresh(ctx, targets, c.Bool("dry-run"))
	if report != nil {
		printReport(c, report)
	}
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if report.HasFailures() {
		return cli.Exit(failureMessage(report), 1)
	}
	return nil
}

func printReport(c *cli.Context, report *embedding.Report) {
	w := c.App.Writer
	fmt.Fprintln(w, report)
	if report.Simulated && len(report.Updated) > 0 {
		fmt.Fprintf(w, "would refresh: %s\n", joinIDs(report.Updated))
	}
}

func failureMessage(report *embedding.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s) failed to refresh:", len(report.Failed))
	for _, f := range report.Failed {
		fmt.Fprintf(&b, "\n  %d: %v", f.Id, f.Err)
	}
	return b.String()
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var rankerOpts []vectorstore.Option
	if cfg.Search.MinSimilarity != nil {
		rankerOpts = append(rankerOpts, vectorstore.WithMinSimilarity(*cfg.Search.MinSimilarity))
	}
	ranker, err := db.NewRanker(rankerOpts...)
	if err != nil {
		return err
	}
	scorer, err := keyword.NewScorer(keyword.WithTagBonus(cfg.Search.TagBonus))
	if err != nil {
		return err
	}
	engine, err := db.NewEngine(ranker, search.WithScorer(scorer))
	if err != nil {
		return err
	}

	filter := storage.Filter{Tags: c.StringSlice("tag")}
	if topic := c.String("topic"); topic != "" {
		filter.TopicId, err = resolveTopic(c, db.Store(), topic)
		if err != nil {
			return err
		}
	}

	resp, err := engine.Search(c.Context, search.Request{
		Query:  query,
		Mode:   search.Mode(cfg.Search.Mode),
		TopK:   cfg.Search.TopK,
		Filter: filter,
	})
	if err != nil {
		return err
	}
	printResponse(c, resp)
	return nil
}

func printResponse(c *cli.Context, resp *search.Response) {
	w := c.App.Writer
	if len(resp.Results) == 0 {
		fmt.Fprintf(w, "no results (%s)\n", resp.Reason)
		return
	}
	if resp.Reason != search.ReasonNone {
		fmt.Fprintf(w, "note: %s\n", resp.Reason)
	}
	for i, r := range resp.Results {
		marker := ""
		if r.Stale {
			marker = " [stale]"
		}
		fmt.Fprintf(w, "%2d. %.4f  %s  (id %d, %s)%s\n", i+1, r.Score, r.Document.Title, r.DocumentId, r.Method, marker)
	}
}

func suggestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.Store().ListDocuments(c.Context, storage.Filter{})
	if err != nil {
		return err
	}
	for _, s := range keyword.Suggest(c.Args().First(), docs, c.Int("limit")) {
		fmt.Fprintln(c.App.Writer, s)
	}
	return nil
}

// resolveTopic accepts a numeric topic id or a topic name.
func resolveTopic(c *cli.Context, store storage.Store, topic string) (core.ID, error) {
	if id, err := strconv.ParseUint(topic, 10, 64); err == nil {
		return core.ID(id), nil
	}
	topics, err := store.ListTopics(c.Context)
	if err != nil {
		return 0, err
	}
	for _, t := range topics {
		if strings.EqualFold(t.Name, topic) {
			return t.Id, nil
		}
	}
	return 0, fmt.Errorf("%w: topic %q", core.ErrNotFound, topic)
}

// parseIDs returns nil for no ids so the pipeline refreshes everything.
func parseIDs(values []string) ([]core.ID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]core.ID, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid document id %q", part)
			}
			ids = append(ids, core.ID(id))
		}
	}
	return ids, nil
}

func joinIDs(ids []core.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ", ")
}

func setupLogger(c *cli.Context) error {
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
