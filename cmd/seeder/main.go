package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/poiesic/mimir"
	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
	"gopkg.in/yaml.v3"
)

// Corpus is the YAML seed file layout.
type Corpus struct {
	Topics        []TopicSeed        `yaml:"topics"`
	Documents     []DocumentSeed     `yaml:"documents"`
	Relationships []RelationshipSeed `yaml:"relationships"`
}

// TopicSeed describes a topic. Parent names a topic listed earlier.
type TopicSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent"`
}

// DocumentSeed describes a document. Topic names a seeded topic.
type DocumentSeed struct {
	Title      string   `yaml:"title"`
	Summary    string   `yaml:"summary"`
	Body       string   `yaml:"body"`
	Tags       []string `yaml:"tags"`
	Topic      string   `yaml:"topic"`
	Confidence float64  `yaml:"confidence"`
}

// RelationshipSeed links two documents by title.
type RelationshipSeed struct {
	From          string  `yaml:"from"`
	To            string  `yaml:"to"`
	Kind          string  `yaml:"kind"`
	Weight        float64 `yaml:"weight"`
	Bidirectional bool    `yaml:"bidirectional"`
}

var defaultCorpus = Corpus{
	Topics: []TopicSeed{
		{Name: "engineering", Description: "How the system is built"},
		{Name: "security", Description: "Access control and secrets", Parent: "engineering"},
		{Name: "operations", Description: "Running the system"},
	},
	Documents: []DocumentSeed{
		{Title: "Authentication flow", Summary: "How users log in", Body: "Users authenticate with a password and receive a session token that expires after one hour.", Tags: []string{"auth", "login"}, Topic: "security", Confidence: 0.9},
		{Title: "Token rotation", Body: "Signing keys rotate weekly. Old keys stay valid for verification for one extra day.", Tags: []string{"auth", "keys"}, Topic: "security", Confidence: 0.8},
		{Title: "Password storage", Body: "Passwords are hashed with argon2id and a per-user salt.", Tags: []string{"auth", "crypto"}, Topic: "security", Confidence: 0.95},
		{Title: "Deployment checklist", Summary: "Steps before a release", Body: "Run migrations, verify backups, then roll out to one region at a time.", Tags: []string{"deploy"}, Topic: "operations", Confidence: 0.7},
		{Title: "Backup schedule", Body: "Full backups run nightly and incremental backups run every hour.", Tags: []string{"backup"}, Topic: "operations", Confidence: 0.8},
		{Title: "On-call rotation", Body: "Engineers rotate on-call duty weekly and hand over open incidents on Monday.", Tags: []string{"oncall"}, Topic: "operations", Confidence: 0.6},
		{Title: "Service layout", Body: "The API gateway routes requests to stateless workers backed by a shared database.", Tags: []string{"architecture"}, Topic: "engineering", Confidence: 0.85},
		{Title: "Caching strategy", Body: "Read-heavy endpoints cache responses for thirty seconds and invalidate on write.", Tags: []string{"architecture", "cache"}, Topic: "engineering", Confidence: 0.75},
	},
	Relationships: []RelationshipSeed{
		{From: "Token rotation", To: "Authentication flow", Kind: core.PartOf, Weight: 1},
		{From: "Password storage", To: "Authentication flow", Kind: core.RelatesTo, Weight: 0.5, Bidirectional: true},
		{From: "Deployment checklist", To: "Backup schedule", Kind: core.RelatesTo, Weight: 0.8},
	},
}

var (
	seedFileName = flag.String("src", "", "YAML file of seed data")
	dbPath       = flag.String("db", "./mimir.db", "path to BadgerDB database directory")
	batchSize    = flag.Int("batch", 5, "documents per insert batch")
	refresh      = flag.Bool("refresh", false, "compute embeddings after seeding")
	local        = flag.Bool("local", false, "use the in-process embedder")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// loadCorpus reads a corpus from a YAML file.
func loadCorpus(filename string) (*Corpus, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var corpus Corpus
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	return &corpus, nil
}

// seedTopics adds topics in order and returns their ids by name.
func seedTopics(ctx context.Context, store storage.Store, seeds []TopicSeed) (map[string]core.ID, error) {
	ids := make(map[string]core.ID, len(seeds))
	for _, seed := range seeds {
		topic := &core.Topic{Name: seed.Name, Description: seed.Description}
		if seed.Parent != "" {
			parent, ok := ids[seed.Parent]
			if !ok {
				return nil, fmt.Errorf("topic %q: unknown parent %q", seed.Name, seed.Parent)
			}
			topic.ParentId = parent
		}
		added, err := store.AddTopic(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", seed.Name, err)
		}
		ids[seed.Name] = added.Id
	}
	return ids, nil
}

// documentsFrom returns an iterator over documents built from seeds.
func documentsFrom(seeds []DocumentSeed, topics map[string]core.ID) iter.Seq2[*core.Document, error] {
	return func(yield func(*core.Document, error) bool) {
		for _, seed := range seeds {
			topicID, ok := topics[seed.Topic]
			if !ok {
				yield(nil, fmt.Errorf("document %q: unknown topic %q", seed.Title, seed.Topic))
				return
			}
			doc := &core.Document{
				Title:      seed.Title,
				Summary:    seed.Summary,
				Body:       seed.Body,
				Tags:       seed.Tags,
				TopicId:    topicID,
				Confidence: seed.Confidence,
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// addBatched reads documents from source and adds them in batches. It
// returns the ids of added documents by title.
func addBatched(ctx context.Context, store storage.Store, source iter.Seq2[*core.Document, error], size int) (map[string]core.ID, error) {
	ids := make(map[string]core.ID)
	batch := make([]*core.Document, 0, size)

	flush := func() error {
		added, err := store.AddDocuments(ctx, batch...)
		if err != nil {
			return err
		}
		for _, doc := range added {
			ids[doc.Title] = doc.Id
		}
		batch = batch[:0]
		return nil
	}

	for doc, err := range source {
		if err != nil {
			return nil, err
		}
		batch = append(batch, doc)
		if len(batch) == size {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	// Add any remaining documents
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func seedRelationships(ctx context.Context, store storage.Store, seeds []RelationshipSeed, docs map[string]core.ID) error {
	for _, seed := range seeds {
		from, ok := docs[seed.From]
		if !ok {
			return fmt.Errorf("relationship: unknown document %q", seed.From)
		}
		to, ok := docs[seed.To]
		if !ok {
			return fmt.Errorf("relationship: unknown document %q", seed.To)
		}
		_, err := store.AddRelationship(ctx, &core.Relationship{
			Kind:          seed.Kind,
			From:          core.DocumentRef(from),
			To:            core.DocumentRef(to),
			Weight:        seed.Weight,
			Bidirectional: seed.Bidirectional,
		})
		if err != nil {
			return fmt.Errorf("relationship %q -> %q: %w", seed.From, seed.To, err)
		}
	}
	return nil
}

// seed writes the corpus into store.
func seed(ctx context.Context, store storage.Store, corpus *Corpus, size int) error {
	topics, err := seedTopics(ctx, store, corpus.Topics)
	if err != nil {
		return err
	}
	docs, err := addBatched(ctx, store, documentsFrom(corpus.Documents, topics), size)
	if err != nil {
		return err
	}
	if err := seedRelationships(ctx, store, corpus.Relationships, docs); err != nil {
		return err
	}
	slog.Info("seeded", "topics", len(topics), "documents", len(docs), "relationships", len(corpus.Relationships))
	return nil
}

func main() {
	flag.Parse()

	var opts []mimir.DatabaseOption
	if *local {
		opts = append(opts, mimir.WithAIConfig(ai.NewConfig(ai.WithProvider(ai.ProviderLocal))))
	}
	db, err := mimir.NewDatabase(*dbPath, opts...)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()

	// Determine source of seed data
	corpus := &defaultCorpus
	if *seedFileName != "" {
		corpus, err = loadCorpus(*seedFileName)
		if err != nil {
			panic(err)
		}
	}

	if err := seed(ctx, db.Store(), corpus, max(*batchSize, 1)); err != nil {
		panic(err)
	}

	if !*refresh {
		return
	}
	pipeline, err := db.NewPipeline()
	if err != nil {
		panic(err)
	}
	defer pipeline.Release()

	report, err := pipeline.Refresh(ctx, nil, false)
	if err != nil {
		panic(err)
	}
	slog.Info("refreshed", "report", report.String())
}
