// Package classify scores free-form utterances against the capability
// catalog and produces a ranked candidate list with confidence values.
//
// Two signals feed the score: semantic similarity between the utterance and
// a capability's example phrases (embedding-backed, the primary signal) and
// the fraction of the capability's keywords present in the utterance (the
// secondary signal). When the similarity backend is unavailable the
// classifier runs on keywords alone ("fallback mode") and the switch is
// process-wide and sticky: once degraded it never attempts a reload.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"aida/internal/extract"
	"aida/internal/registry"
)

// ErrModelUnavailable is returned by Classify when the similarity backend is
// unavailable and keyword fallback has been disabled in configuration.
var ErrModelUnavailable = errors.New("classify: similarity model unavailable")

// Blend weights applied when both the similarity and keyword signals are
// available. Similarity dominates; the keyword fraction acts as a tie-break
// addend.
const (
	similarityWeight = 0.85
	keywordWeight    = 0.15
)

// Confidence tiers used when candidates are presented as suggestions.
const (
	HighConfidenceThreshold = 0.75
	MidConfidenceThreshold  = 0.5
)

// Tier buckets a confidence value for display: "high" (≥ 0.75),
// "medium" (≥ 0.5), or "low".
func Tier(confidence float64) string {
	switch {
	case confidence >= HighConfidenceThreshold:
		return "high"
	case confidence >= MidConfidenceThreshold:
		return "medium"
	default:
		return "low"
	}
}

// Candidate is one scored capability for a single utterance. Candidates are
// transient: they live for the duration of one request.
type Candidate struct {
	Descriptor *registry.Descriptor

	// Confidence is the combined score in [0, 1].
	Confidence float64

	// Hints are the matched keywords and/or example phrase that produced the
	// score, useful as extraction hints and for explain-style output.
	Hints []string

	// unresolved is the number of required slots the extractor could not fill
	// from this utterance; used only for tie-breaking.
	unresolved int
}

// Classifier scores utterances against every registry entry.
type Classifier struct {
	reg            *registry.Registry
	index          *SimilarityIndex // nil when no similarity backend was configured
	enableFallback bool

	mu       sync.Mutex
	degraded bool
}

// New creates a Classifier. Pass a nil index to start directly in keyword
// fallback mode (the caller failed to prime a similarity backend, or never
// configured one). enableFallback controls whether keyword-only operation is
// permitted when the similarity backend is unavailable.
func New(reg *registry.Registry, index *SimilarityIndex, enableFallback bool) *Classifier {
	return &Classifier{
		reg:            reg,
		index:          index,
		enableFallback: enableFallback,
		degraded:       index == nil,
	}
}

// FallbackMode reports whether the classifier is running on keywords alone.
func (c *Classifier) FallbackMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// degrade switches the classifier into keyword fallback mode for the
// remainder of the process. Logged once; repeated calls are no-ops.
func (c *Classifier) degrade(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return
	}
	c.degraded = true
	slog.Warn("classify: similarity backend unavailable, switching to keyword fallback for the remainder of the process",
		"err", err,
	)
}

// Classify scores the utterance against every capability in the registry and
// returns candidates ordered by confidence, highest first. Ties are broken
// by fewer unresolved required parameters after extraction, then by
// lexicographic capability name.
//
// Returns ErrModelUnavailable only when the similarity backend is down and
// fallback mode has been disabled; every other degraded condition is handled
// by silently switching to keywords.
func (c *Classifier) Classify(ctx context.Context, utterance string) ([]Candidate, error) {
	query := c.queryVector(ctx, utterance)

	if c.FallbackMode() && !c.enableFallback {
		return nil, ErrModelUnavailable
	}

	candidates := make([]Candidate, 0, c.reg.Len())
	for _, d := range c.reg.All() {
		candidates = append(candidates, c.score(utterance, d, query))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.unresolved != b.unresolved {
			return a.unresolved < b.unresolved
		}
		return a.Descriptor.Name < b.Descriptor.Name
	})
	return candidates, nil
}

// queryVector embeds the utterance unless the classifier is already
// degraded. Any failure degrades the classifier and returns nil.
func (c *Classifier) queryVector(ctx context.Context, utterance string) []float32 {
	if c.FallbackMode() || c.index == nil {
		return nil
	}
	vec, err := c.index.QueryVector(ctx, utterance)
	if err != nil {
		c.degrade(err)
		return nil
	}
	if vec == nil {
		c.degrade(ErrModelUnavailable)
		return nil
	}
	return vec
}

// score computes one candidate for one descriptor.
func (c *Classifier) score(utterance string, d *registry.Descriptor, query []float32) Candidate {
	kwScore, matched := keywordScore(utterance, d)

	var confidence float64
	if query != nil {
		sim, exampleIdx := c.index.MaxSimilarity(d.Name, query)
		confidence = similarityWeight*sim + keywordWeight*kwScore
		if confidence > 1 {
			confidence = 1
		}
		if exampleIdx >= 0 && sim >= MidConfidenceThreshold && exampleIdx < len(d.Examples) {
			matched = append(matched, fmt.Sprintf("example: %s", d.Examples[exampleIdx]))
		}
	} else {
		confidence = kwScore
	}

	// A verbatim example match is a certain classification in either mode.
	if ex, ok := exampleMatch(utterance, d); ok {
		confidence = 1
		matched = append(matched, fmt.Sprintf("verbatim example: %s", ex))
	}

	return Candidate{
		Descriptor: d,
		Confidence: confidence,
		Hints:      matched,
		unresolved: len(d.MissingSlots(extract.Extract(utterance, d))),
	}
}
