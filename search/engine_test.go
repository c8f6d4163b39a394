package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/mimir/ai/mock"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/keyword"
	"github.com/poiesic/mimir/storage"
	"github.com/poiesic/mimir/storage/badger"
	"github.com/poiesic/mimir/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var testModel = core.ModelIdentity{ID: "mock-embed", Version: "1", Dimension: 3}

type testEnv struct {
	store    *badger.Store
	embedder *mock.MockEmbedder
	provider *mock.MockProvider
	topic    *core.Topic
	queries  map[string][]float32
	mu       sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	topic, err := store.AddTopic(context.Background(), &core.Topic{Name: "engineering"})
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		embedder: mock.NewMockEmbedder(),
		topic:    topic,
		queries:  make(map[string][]float32),
	}
	env.embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		if v, ok := env.queries[text]; ok {
			return v, nil
		}
		return []float32{0, 0, 1}, nil
	})
	env.provider = mock.NewMockProviderWithServices(env.embedder, testModel)
	return env
}

// queryVector makes the mock embedder return v for query.
func (e *testEnv) queryVector(query string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries[query] = v
}

func (e *testEnv) engine(t *testing.T, capability vectorstore.Capability, opts ...Option) *Engine {
	t.Helper()
	ranker, err := vectorstore.New(e.store, e.store, capability)
	require.NoError(t, err)
	engine, err := NewEngine(e.store, ranker, e.provider, opts...)
	require.NoError(t, err)
	return engine
}

func (e *testEnv) addDocument(t *testing.T, title, body string, tags ...string) *core.Document {
	t.Helper()
	return e.addDocumentIn(t, e.topic.Id, title, body, tags...)
}

func (e *testEnv) addDocumentIn(t *testing.T, topicID core.ID, title, body string, tags ...string) *core.Document {
	t.Helper()
	docs, err := e.store.AddDocuments(context.Background(), &core.Document{
		Title:   title,
		Body:    body,
		Tags:    tags,
		TopicId: topicID,
	})
	require.NoError(t, err)
	return docs[0]
}

// embed writes a current vector for doc under testModel.
func (e *testEnv) embed(t *testing.T, doc *core.Document, vector []float32) {
	t.Helper()
	meta := core.EmbeddingMeta{
		ModelID:      testModel.ID,
		ModelVersion: testModel.Version,
		Fingerprint:  doc.Fingerprint(),
		ComputedAt:   time.Now().UTC(),
	}
	require.NoError(t, e.store.WriteEmbedding(context.Background(), doc.Id, vector, meta))
}

func TestNewEngine(t *testing.T) {
	env := newTestEnv(t)
	ranker, err := vectorstore.New(env.store, nil, vectorstore.Capability{})
	require.NoError(t, err)

	t.Run("valid configuration", func(t *testing.T) {
		engine, err := NewEngine(env.store, ranker, env.provider)
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("with options", func(t *testing.T) {
		scorer, err := keyword.NewScorer(keyword.WithTagBonus(3))
		require.NoError(t, err)
		engine, err := NewEngine(env.store, ranker, env.provider,
			WithScorer(scorer),
			WithLogger(slog.Default()),
			WithTracerProvider(noop.NewTracerProvider()))
		require.NoError(t, err)
		assert.Same(t, scorer, engine.scorer)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		engine, err := NewEngine(env.store, ranker, env.provider, WithLogger(nil), WithTracerProvider(nil))
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewEngine(nil, ranker, env.provider)
		assert.Equal(t, ErrStoreRequired, err)
	})

	t.Run("nil ranker", func(t *testing.T) {
		_, err := NewEngine(env.store, nil, env.provider)
		assert.Equal(t, ErrRankerRequired, err)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := NewEngine(env.store, ranker, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAuto},
		{in: "auto", want: ModeAuto},
		{in: "Keyword", want: ModeKeyword},
		{in: " semantic ", want: ModeSemantic},
		{in: "fuzzy", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				assert.ErrorIs(t, err, core.ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_InvalidRequests(t *testing.T) {
	env := newTestEnv(t)
	env.addDocument(t, "JWT RS256 auth", "tokens", "auth")
	engine := env.engine(t, vectorstore.Capability{})
	ctx := context.Background()

	tests := []struct {
		name   string
		req    Request
		target error
	}{
		{name: "unknown mode", req: Request{Query: "auth", Mode: "fuzzy", TopK: 5}, target: ErrInvalidMode},
		{name: "empty query", req: Request{Query: "   ", TopK: 5}, target: ErrInvalidQuery},
		{name: "zero top-k", req: Request{Query: "auth", TopK: 0}, target: ErrInvalidQuery},
		{name: "unknown topic", req: Request{Query: "auth", TopK: 5, Filter: storage.Filter{TopicId: 999}}, target: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.embedder.Reset()
			resp, err := engine.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.target)
			assert.Nil(t, resp)
			assert.Zero(t, env.embedder.CallCount(), "no work before validation")
		})
	}
}

func TestSearch_AuthScenario(t *testing.T) {
	for _, native := range []bool{false, true} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			env := newTestEnv(t)
			a := env.addDocument(t, "JWT RS256 auth", "JWT RS256 auth", "auth")
			b := env.addDocument(t, "database indexing", "database indexing")
			env.embed(t, a, []float32{1, 0, 0})
			env.embed(t, b, []float32{0, 1, 0})
			env.queryVector("token signing", []float32{0.9, 0.1, 0})

			engine := env.engine(t, vectorstore.Capability{Native: native, Dimension: 3})
			ctx := context.Background()

			resp, err := engine.Search(ctx, Request{Query: "auth", Mode: ModeKeyword, TopK: 10})
			require.NoError(t, err)
			assert.Equal(t, []core.ID{a.Id}, resp.IDs())
			assert.Equal(t, MethodKeyword, resp.Results[0].Method)
			assert.Equal(t, ReasonNone, resp.Reason)

			resp, err = engine.Search(ctx, Request{Query: "token signing", Mode: ModeSemantic, TopK: 1})
			require.NoError(t, err)
			assert.Equal(t, []core.ID{a.Id}, resp.IDs())
			assert.Equal(t, MethodSemantic, resp.Results[0].Method)
			assert.False(t, resp.Results[0].Stale)
			assert.Greater(t, resp.Results[0].Score, 0.9)
			assert.Equal(t, a.Title, resp.Results[0].Document.Title)
		})
	}
}

func TestSearch_AutoFallbackMatchesKeyword(t *testing.T) {
	env := newTestEnv(t)
	env.addDocument(t, "go channels", "channels connect goroutines", "go")
	env.addDocument(t, "go modules", "versioned dependencies")
	env.addDocument(t, "rust ownership", "borrow checker")
	env.addDocument(t, "go generics", "type parameters for go")
	engine := env.engine(t, vectorstore.Capability{})
	ctx := context.Background()

	keywordResp, err := engine.Search(ctx, Request{Query: "go channels", Mode: ModeKeyword, TopK: 10})
	require.NoError(t, err)
	autoResp, err := engine.Search(ctx, Request{Query: "go channels", Mode: ModeAuto, TopK: 10})
	require.NoError(t, err)

	require.NotEmpty(t, keywordResp.Results)
	assert.Equal(t, keywordResp.IDs(), autoResp.IDs())
	assert.Equal(t, ReasonKeywordFallback, autoResp.Reason)
	assert.Equal(t, ModeAuto, autoResp.Mode)
	for _, r := range autoResp.Results {
		assert.Equal(t, MethodKeywordFallback, r.Method)
	}
	assert.Zero(t, env.embedder.CallCount(), "no query vector without embedded documents")
}

func TestSearch_HybridFill(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.addDocument(t, "retrieval basics", "vector retrieval")
	e2 := env.addDocument(t, "retrieval at scale", "sharded retrieval")
	u1 := env.addDocument(t, "retrieval tags", "retrieval", "retrieval")
	u2 := env.addDocument(t, "retrieval notes", "notes on retrieval")
	u3 := env.addDocument(t, "retrieval faq", "frequently asked")
	env.embed(t, e1, []float32{1, 0, 0})
	env.embed(t, e2, []float32{0, 1, 0})
	env.queryVector("retrieval", []float32{1, 0.2, 0})

	engine := env.engine(t, vectorstore.Capability{})
	resp, err := engine.Search(context.Background(), Request{Query: "retrieval", TopK: 4})
	require.NoError(t, err)

	require.Len(t, resp.Results, 4)
	assert.Equal(t, []core.ID{e1.Id, e2.Id}, resp.IDs()[:2])
	assert.Equal(t, MethodSemantic, resp.Results[0].Method)
	assert.Equal(t, MethodSemantic, resp.Results[1].Method)
	assert.Equal(t, MethodKeyword, resp.Results[2].Method)
	assert.Equal(t, MethodKeyword, resp.Results[3].Method)

	// u1 carries the tag bonus; u2 and u3 tie on score and the newer one wins
	assert.Equal(t, u1.Id, resp.Results[2].DocumentId)
	assert.Contains(t, []core.ID{u2.Id, u3.Id}, resp.Results[3].DocumentId)

	seen := make(map[core.ID]bool)
	for _, id := range resp.IDs() {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, ReasonNone, resp.Reason)
}

func TestSearch_SemanticWithoutEmbeddings(t *testing.T) {
	env := newTestEnv(t)
	env.addDocument(t, "JWT RS256 auth", "tokens", "auth")
	engine := env.engine(t, vectorstore.Capability{})

	resp, err := engine.Search(context.Background(), Request{Query: "auth", Mode: ModeSemantic, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, ReasonNoEmbeddedDocuments, resp.Reason)
	assert.ErrorIs(t, resp.Err(), core.ErrEmptyCorpus)
}

func TestSearch_SemanticIgnoresUnembedded(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "alpha", "first")
	env.addDocument(t, "beta", "second")
	env.embed(t, a, []float32{0, 0, 1})
	engine := env.engine(t, vectorstore.Capability{})

	resp, err := engine.Search(context.Background(), Request{Query: "beta", Mode: ModeSemantic, TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{a.Id}, resp.IDs())
	assert.NoError(t, resp.Err())
}

func TestSearch_NoResults(t *testing.T) {
	env := newTestEnv(t)
	env.addDocument(t, "alpha", "first")
	engine := env.engine(t, vectorstore.Capability{})

	resp, err := engine.Search(context.Background(), Request{Query: "zebra", Mode: ModeKeyword, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, ReasonNoResults, resp.Reason)
	assert.NoError(t, resp.Err())
}

func TestSearch_StaleAnnotation(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "alpha", "first")
	b := env.addDocument(t, "beta", "second")
	env.embed(t, a, []float32{1, 0, 0})
	env.embed(t, b, []float32{0, 1, 0})

	edited, err := env.store.GetDocument(context.Background(), a.Id)
	require.NoError(t, err)
	edited.Body = "first, rewritten"
	_, err = env.store.UpdateDocuments(context.Background(), edited)
	require.NoError(t, err)

	env.queryVector("query", []float32{1, 1, 0})
	engine := env.engine(t, vectorstore.Capability{})
	resp, err := engine.Search(context.Background(), Request{Query: "query", Mode: ModeSemantic, TopK: 5})
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	stale := make(map[core.ID]bool)
	for _, r := range resp.Results {
		stale[r.DocumentId] = r.Stale
	}
	assert.True(t, stale[a.Id], "edited document is stale but still ranked")
	assert.False(t, stale[b.Id])
}

func TestSearch_DimensionIsolation(t *testing.T) {
	for _, native := range []bool{false, true} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			env := newTestEnv(t)
			old := env.addDocument(t, "old model", "embedded long ago")
			current := env.addDocument(t, "current model", "embedded today")
			meta := core.EmbeddingMeta{ModelID: "older", ModelVersion: "0", Fingerprint: old.Fingerprint(), ComputedAt: time.Now()}
			require.NoError(t, env.store.WriteEmbedding(context.Background(), old.Id, []float32{0.5, 0.5, 0.5, 0.5}, meta))
			env.embed(t, current, []float32{0, 0, 1})

			engine := env.engine(t, vectorstore.Capability{Native: native, Dimension: 3})
			resp, err := engine.Search(context.Background(), Request{Query: "anything", Mode: ModeSemantic, TopK: 5})
			require.NoError(t, err)
			assert.Equal(t, []core.ID{current.Id}, resp.IDs())
		})
	}
}

func TestSearch_TopicFilter(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.store.AddTopic(context.Background(), &core.Topic{Name: "cooking"})
	require.NoError(t, err)
	empty, err := env.store.AddTopic(context.Background(), &core.Topic{Name: "empty"})
	require.NoError(t, err)

	env.addDocument(t, "pasta in code", "spaghetti code")
	pasta := env.addDocumentIn(t, other.Id, "pasta", "fresh pasta")
	engine := env.engine(t, vectorstore.Capability{})
	ctx := context.Background()

	resp, err := engine.Search(ctx, Request{Query: "pasta", Mode: ModeKeyword, TopK: 5, Filter: storage.Filter{TopicId: other.Id}})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{pasta.Id}, resp.IDs())

	resp, err = engine.Search(ctx, Request{Query: "pasta", TopK: 5, Filter: storage.Filter{TopicId: empty.Id}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, ReasonNoResults, resp.Reason)
}

func TestSearch_TagFilterRestrictsSemanticCandidates(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "alpha", "first", "keep")
	b := env.addDocument(t, "beta", "second")
	env.embed(t, a, []float32{0, 1, 0})
	env.embed(t, b, []float32{1, 0, 0})
	env.queryVector("query", []float32{1, 0, 0})

	for _, native := range []bool{false, true} {
		engine := env.engine(t, vectorstore.Capability{Native: native, Dimension: 3})
		resp, err := engine.Search(context.Background(), Request{
			Query:  "query",
			Mode:   ModeSemantic,
			TopK:   5,
			Filter: storage.Filter{Tags: []string{"KEEP"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []core.ID{a.Id}, resp.IDs())
	}
}

func TestSearch_EncoderFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "auth", "tokens", "auth")
	env.embed(t, a, []float32{1, 0, 0})
	env.embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("encoder offline")
	})
	engine := env.engine(t, vectorstore.Capability{})
	ctx := context.Background()

	t.Run("auto degrades to keyword", func(t *testing.T) {
		resp, err := engine.Search(ctx, Request{Query: "auth", TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, ReasonSemanticUnavailable, resp.Reason)
		assert.Equal(t, []core.ID{a.Id}, resp.IDs())
		assert.Equal(t, MethodKeywordFallback, resp.Results[0].Method)
	})

	t.Run("semantic surfaces the error", func(t *testing.T) {
		_, err := engine.Search(ctx, Request{Query: "auth", Mode: ModeSemantic, TopK: 5})
		assert.ErrorIs(t, err, core.ErrEncodingFailure)
	})
}

func TestSearch_Deterministic(t *testing.T) {
	env := newTestEnv(t)
	for i := range 6 {
		doc := env.addDocument(t, fmt.Sprintf("doc %d", i), "same text")
		env.embed(t, doc, []float32{1, 0, 0})
	}
	engine := env.engine(t, vectorstore.Capability{})
	req := Request{Query: "same", Mode: ModeSemantic, TopK: 4}

	first, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), second.IDs())
	assert.IsIncreasing(t, first.IDs(), "equal scores tie-break by id")
}

func TestSearch_ConcurrentReaders(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "alpha", "shared words", "alpha")
	env.addDocument(t, "beta", "shared words")
	env.embed(t, a, []float32{1, 0, 0})
	engine := env.engine(t, vectorstore.Capability{})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mode := []Mode{ModeAuto, ModeKeyword, ModeSemantic}[i%3]
			resp, err := engine.Search(context.Background(), Request{Query: "shared", Mode: mode, TopK: 2})
			assert.NoError(t, err)
			assert.NotEmpty(t, resp.Results)
		}()
	}
	wg.Wait()
}

func TestSearchWithMonitor(t *testing.T) {
	env := newTestEnv(t)
	a := env.addDocument(t, "alpha", "shared words")
	env.addDocument(t, "beta", "shared words")
	env.embed(t, a, []float32{1, 0, 0})
	engine := env.engine(t, vectorstore.Capability{})

	monitor := &recordingMonitor{}
	resp, err := engine.SearchWithMonitor(context.Background(), Request{Query: "shared", TopK: 2}, monitor)
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "snapshot", "semantic", "keyword", "finish"}, monitor.events)
	assert.Equal(t, 1, monitor.embedded)
	assert.Same(t, resp, monitor.finished)
}

type recordingMonitor struct {
	events   []string
	embedded int
	finished *Response
}

func (m *recordingMonitor) Start(_ Request) { m.events = append(m.events, "start") }

func (m *recordingMonitor) AfterSnapshot(_ []*core.Document, embedded int) {
	m.events = append(m.events, "snapshot")
	m.embedded = embedded
}

func (m *recordingMonitor) AfterSemanticSearch(_ []core.ScoredID) {
	m.events = append(m.events, "semantic")
}

func (m *recordingMonitor) SemanticUnavailable(_ error) {
	m.events = append(m.events, "unavailable")
}

func (m *recordingMonitor) AfterKeywordSearch(_ []keyword.Hit) {
	m.events = append(m.events, "keyword")
}

func (m *recordingMonitor) Finish(resp *Response) {
	m.events = append(m.events, "finish")
	m.finished = resp
}
