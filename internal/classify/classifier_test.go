package classify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"aida/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Descriptor{
		{
			Name:        "weather",
			Description: "Get weather information",
			Examples:    []string{"what's the weather like?", "weather forecast for London"},
			Keywords:    []string{"weather", "forecast", "rain"},
			Slots: []registry.Slot{
				{Name: "location", Type: registry.SlotLocation, Required: true},
			},
		},
		{
			Name:        "time",
			Description: "Show the current time",
			Examples:    []string{"what time is it?"},
			Keywords:    []string{"time", "clock", "date"},
		},
		{
			Name:        "wiki",
			Description: "Search Wikipedia",
			Examples:    []string{"search Wikipedia for Python"},
			Keywords:    []string{"wiki", "wikipedia", "encyclopedia"},
			Slots: []registry.Slot{
				{Name: "topic", Type: registry.SlotFreetext, Required: true},
			},
		},
	})
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	return reg
}

// topicEmbedder maps any text mentioning a topic word onto that topic's
// basis vector, so texts about the same topic have cosine similarity 1 and
// unrelated texts score 0. Deterministic stand-in for a real embedding
// model.
type topicEmbedder struct {
	topics []string
}

func (e topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.topics)+1)
	lower := strings.ToLower(text)
	for i, topic := range e.topics {
		if strings.Contains(lower, topic) {
			vec[i] = 1
			return vec, nil
		}
	}
	vec[len(e.topics)] = 1
	return vec, nil
}

// flakyEmbedder succeeds until the trip point, then fails every call.
type flakyEmbedder struct {
	inner Embedder

	mu    sync.Mutex
	calls int
	trip  int
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	tripped := e.calls > e.trip
	e.mu.Unlock()
	if tripped {
		return nil, errors.New("backend gone")
	}
	return e.inner.Embed(ctx, text)
}

func primedIndex(t *testing.T, reg *registry.Registry, e Embedder) *SimilarityIndex {
	t.Helper()
	idx := NewSimilarityIndex(e)
	if err := idx.Prime(context.Background(), reg); err != nil {
		t.Fatalf("Prime() error: %v", err)
	}
	return idx
}

var testTopics = []string{"weather", "forecast", "rain", "time", "wiki"}

func TestClassify_SimilarityRanksTopCandidate(t *testing.T) {
	reg := testRegistry(t)
	idx := primedIndex(t, reg, topicEmbedder{topics: testTopics})
	c := New(reg, idx, true)

	got, err := c.Classify(context.Background(), "how's the weather looking in Berlin this week")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if got[0].Descriptor.Name != "weather" {
		t.Fatalf("top candidate = %q, want weather", got[0].Descriptor.Name)
	}
	if got[0].Confidence < HighConfidenceThreshold {
		t.Errorf("confidence = %v, want >= %v", got[0].Confidence, HighConfidenceThreshold)
	}
	if c.FallbackMode() {
		t.Error("FallbackMode() = true, want false")
	}
}

func TestClassify_VerbatimExampleIsCertain(t *testing.T) {
	reg := testRegistry(t)

	// Keyword-only mode: even there, an exact example match must classify
	// with full confidence.
	c := New(reg, nil, true)

	got, err := c.Classify(context.Background(), "What time is it")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if got[0].Descriptor.Name != "time" {
		t.Fatalf("top candidate = %q, want time", got[0].Descriptor.Name)
	}
	if got[0].Confidence != 1 {
		t.Errorf("confidence = %v, want 1", got[0].Confidence)
	}
}

func TestClassify_DegradeIsSticky(t *testing.T) {
	reg := testRegistry(t)

	// 4 example phrases prime fine, then the first query call fails.
	embedder := &flakyEmbedder{inner: topicEmbedder{topics: testTopics}, trip: 4}
	idx := primedIndex(t, reg, embedder)
	c := New(reg, idx, true)

	if c.FallbackMode() {
		t.Fatal("FallbackMode() = true before any query")
	}

	if _, err := c.Classify(context.Background(), "weather in Paris"); err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if !c.FallbackMode() {
		t.Fatal("FallbackMode() = false after backend failure")
	}

	callsAfterDegrade := embedder.calls
	if _, err := c.Classify(context.Background(), "what time is it?"); err != nil {
		t.Fatalf("Classify() in fallback error: %v", err)
	}
	if embedder.calls != callsAfterDegrade {
		t.Errorf("embedder called again after degrade: %d -> %d calls", callsAfterDegrade, embedder.calls)
	}
}

func TestClassify_FallbackDisabled(t *testing.T) {
	reg := testRegistry(t)
	c := New(reg, nil, false)

	_, err := c.Classify(context.Background(), "weather in Paris")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("Classify() error = %v, want ErrModelUnavailable", err)
	}
}

func TestClassify_KeywordOnlyScoring(t *testing.T) {
	reg := testRegistry(t)
	c := New(reg, nil, true)

	got, err := c.Classify(context.Background(), "weather forecast please")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if got[0].Descriptor.Name != "weather" {
		t.Fatalf("top candidate = %q, want weather", got[0].Descriptor.Name)
	}
	// 2 of 3 keywords matched.
	want := 2.0 / 3.0
	if diff := got[0].Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", got[0].Confidence, want)
	}
}

func TestClassify_OrderIsDeterministic(t *testing.T) {
	reg := testRegistry(t)
	c := New(reg, nil, true)

	// No keyword matches anything: all confidences are 0 and order falls to
	// unresolved-slot count, then name. "time" has no required slots.
	got, err := c.Classify(context.Background(), "xyzzy")
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if len(got) != reg.Len() {
		t.Fatalf("len(candidates) = %d, want %d", len(got), reg.Len())
	}
	if got[0].Descriptor.Name != "time" {
		t.Errorf("first candidate = %q, want time (fewest unresolved slots)", got[0].Descriptor.Name)
	}
}

func TestTier(t *testing.T) {
	tests := []struct {
		confidence float64
		want       string
	}{
		{0.9, "high"},
		{0.75, "high"},
		{0.6, "medium"},
		{0.5, "medium"},
		{0.49, "low"},
		{0, "low"},
	}
	for _, tt := range tests {
		if got := Tier(tt.confidence); got != tt.want {
			t.Errorf("Tier(%v) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}

func TestMaxKeywordScore(t *testing.T) {
	reg := testRegistry(t)

	if got := MaxKeywordScore(reg, "how about London?"); got != 0 {
		t.Errorf("MaxKeywordScore(elliptical) = %v, want 0", got)
	}
	if got := MaxKeywordScore(reg, "weather forecast"); got < 0.5 {
		t.Errorf("MaxKeywordScore(weather forecast) = %v, want >= 0.5", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What's the Weather?", "whats the weather"},
		{"  HELLO,   world!  ", "hello world"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
