// Package resolve is the decision core of the assistant. It combines the
// classifier's ranked candidates, the extractor's entities, and the
// session's conversation context into a single Decision per utterance:
// execute a capability, ask for a missing parameter, or present ranked
// suggestions. It is the only component that calls the invocation gateway,
// and the only one that enforces the execution deadline.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aida/internal/classify"
	"aida/internal/extract"
	"aida/internal/gateway"
	"aida/internal/registry"
	"aida/internal/session"
)

// Kind enumerates the outcomes a Decision can carry.
type Kind string

const (
	// KindExecuted means a capability was invoked and produced output.
	KindExecuted Kind = "executed"
	// KindClarifying means a capability was confidently identified but a
	// required parameter is missing; Prompt asks for it.
	KindClarifying Kind = "clarifying"
	// KindRejected means no capability reached the confidence threshold;
	// Suggestions lists the closest matches.
	KindRejected Kind = "rejected"
	// KindFailed means a capability was invoked but execution failed or
	// timed out; Reason explains.
	KindFailed Kind = "failed"
)

// Suggestion is one ranked alternative offered on rejection.
type Suggestion struct {
	Name        string
	Description string
	Confidence  float64
	Tier        string
}

// Decision is the engine's answer for one utterance. Exactly one of the
// kind-specific fields groups is meaningful, selected by Kind.
type Decision struct {
	Kind       Kind
	Capability string
	Entities   map[string]string
	Confidence float64

	// Executed.
	Output string

	// Clarifying.
	MissingSlots []string
	Prompt       string

	// Rejected.
	Suggestions []Suggestion

	// Failed.
	Reason  string
	Timeout bool

	// FollowUp marks a decision that reused the previous turn's capability.
	FollowUp bool

	// FallbackMode reports that classification ran on keywords alone.
	FallbackMode bool
}

// followUpKeywordFloor is the keyword score at or above which an utterance
// is considered to carry a capability signal of its own, making it a fresh
// request rather than an elliptical follow-up.
const followUpKeywordFloor = 0.25

// Options configures an Engine. Zero values take the documented defaults.
type Options struct {
	ConfidenceThreshold float64
	MaxSuggestions      int
	ExecutionTimeout    time.Duration
}

// Engine resolves utterances to decisions and dispatches executions.
type Engine struct {
	reg        *registry.Registry
	classifier *classify.Classifier
	manager    *session.Manager
	gw         gateway.Gateway
	opts       Options
}

// NewEngine wires the resolution pipeline together.
func NewEngine(reg *registry.Registry, c *classify.Classifier, m *session.Manager, gw gateway.Gateway, opts Options) *Engine {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.6
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 3
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = 30 * time.Second
	}
	return &Engine{reg: reg, classifier: c, manager: m, gw: gw, opts: opts}
}

// Resolve turns one utterance into a Decision and records the turn on the
// session. Resolution order: a pending clarification is tried first (the
// utterance as a slot-fill answer), then fresh classification, then, when
// classification stays below threshold and the utterance carries no keyword
// signal of its own, follow-up against the last executed turn.
//
// Only the gateway call is cancellable; classification and extraction run
// to completion.
func (e *Engine) Resolve(ctx context.Context, utterance string, sess *session.Session) (Decision, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Decision{}, errors.New("resolve: empty utterance")
	}

	if pending := sess.Pending(); pending != nil {
		if dec, ok, err := e.resolvePending(ctx, utterance, sess, pending); ok {
			return dec, err
		}
	}

	candidates, err := e.classifier.Classify(ctx, utterance)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve: %w", err)
	}
	if len(candidates) == 0 {
		return e.reject(ctx, utterance, sess, nil)
	}

	top := candidates[0]
	if top.Confidence >= e.opts.ConfidenceThreshold {
		entities := extract.Extract(utterance, top.Descriptor)
		return e.acceptCandidate(ctx, utterance, sess, top.Descriptor, entities, top.Confidence, false)
	}

	// Below threshold. An utterance with no capability signal of its own may
	// be an elliptical follow-up to the previous executed turn.
	if classify.MaxKeywordScore(e.reg, utterance) < followUpKeywordFloor {
		if fu := session.ResolveFollowUp(sess, utterance, e.reg); fu != nil {
			return e.acceptCandidate(ctx, utterance, sess, fu.Descriptor, fu.Entities, fu.Confidence, true)
		}
	}

	return e.reject(ctx, utterance, sess, candidates)
}

// resolvePending tries the utterance as an answer to the pending
// clarification. Reports handled=false when the utterance fills none of the
// missing slots, in which case the caller re-classifies it from scratch.
func (e *Engine) resolvePending(ctx context.Context, utterance string, sess *session.Session, pending *session.Pending) (Decision, bool, error) {
	d, ok := e.reg.Get(pending.Capability)
	if !ok {
		return Decision{}, false, nil
	}

	entities := make(map[string]string, len(pending.Entities))
	for k, v := range pending.Entities {
		entities[k] = v
	}

	filled := false
	fresh := extract.Extract(utterance, d)
	for _, name := range d.MissingSlots(entities) {
		if v, ok := fresh[name]; ok && v != "" {
			entities[name] = v
			filled = true
		}
	}
	if !filled {
		// Bare answers ("London") carry no slot syntax; try the first
		// missing slot by type.
		for _, slot := range d.RequiredSlots() {
			if _, have := entities[slot.Name]; have {
				continue
			}
			if v := extract.AnswerValue(utterance, slot.Type); v != "" {
				entities[slot.Name] = v
				filled = true
			}
			break
		}
	}
	if !filled {
		return Decision{}, false, nil
	}

	dec, err := e.acceptCandidate(ctx, utterance, sess, d, entities, pending.Confidence, false)
	return dec, true, err
}

// acceptCandidate executes the capability if its required slots are filled,
// otherwise records a clarifying turn asking for the first missing one.
func (e *Engine) acceptCandidate(ctx context.Context, utterance string, sess *session.Session, d *registry.Descriptor, entities map[string]string, confidence float64, followUp bool) (Decision, error) {
	if entities == nil {
		entities = map[string]string{}
	}

	if missing := d.MissingSlots(entities); len(missing) > 0 {
		dec := Decision{
			Kind:         KindClarifying,
			Capability:   d.Name,
			Entities:     entities,
			Confidence:   confidence,
			MissingSlots: missing,
			Prompt:       clarifyPrompt(d, missing[0]),
			FollowUp:     followUp,
			FallbackMode: e.classifier.FallbackMode(),
		}
		e.record(sess, utterance, dec, session.OutcomeClarifying)
		return dec, nil
	}

	return e.execute(ctx, utterance, sess, d, entities, confidence, followUp)
}

// execute invokes the gateway under the configured hard deadline and maps
// the result to an Executed or Failed decision.
func (e *Engine) execute(ctx context.Context, utterance string, sess *session.Session, d *registry.Descriptor, entities map[string]string, confidence float64, followUp bool) (Decision, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.opts.ExecutionTimeout)
	defer cancel()

	result, err := e.gw.Invoke(execCtx, gateway.Invocation{
		Capability: d.Name,
		Parameters: entities,
	})

	dec := Decision{
		Capability:   d.Name,
		Entities:     entities,
		Confidence:   confidence,
		FollowUp:     followUp,
		FallbackMode: e.classifier.FallbackMode(),
	}

	switch {
	case err == nil:
		dec.Kind = KindExecuted
		dec.Output = result.Output
		e.record(sess, utterance, dec, session.OutcomeExecuted)
		return dec, nil

	case errors.Is(err, gateway.ErrTimeout):
		dec.Kind = KindFailed
		dec.Timeout = true
		dec.Reason = fmt.Sprintf("capability %q did not finish within %s", d.Name, e.opts.ExecutionTimeout)
		slog.Warn("resolve: capability execution timed out",
			"capability", d.Name,
			"timeout", e.opts.ExecutionTimeout,
		)
		e.record(sess, utterance, dec, session.OutcomeFailed)
		return dec, nil

	default:
		dec.Kind = KindFailed
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			dec.Reason = gwErr.Reason
		} else {
			dec.Reason = err.Error()
		}
		slog.Warn("resolve: capability execution failed",
			"capability", d.Name,
			"err", err,
		)
		e.record(sess, utterance, dec, session.OutcomeFailed)
		return dec, nil
	}
}

// reject records a rejected turn carrying the top-ranked suggestions.
func (e *Engine) reject(ctx context.Context, utterance string, sess *session.Session, candidates []classify.Candidate) (Decision, error) {
	limit := e.opts.MaxSuggestions
	if limit > len(candidates) {
		limit = len(candidates)
	}
	suggestions := make([]Suggestion, 0, limit)
	for _, cand := range candidates[:limit] {
		suggestions = append(suggestions, Suggestion{
			Name:        cand.Descriptor.Name,
			Description: cand.Descriptor.Description,
			Confidence:  cand.Confidence,
			Tier:        classify.Tier(cand.Confidence),
		})
	}

	dec := Decision{
		Kind:         KindRejected,
		Suggestions:  suggestions,
		FallbackMode: e.classifier.FallbackMode(),
	}
	if len(candidates) > 0 {
		dec.Confidence = candidates[0].Confidence
	}
	e.record(sess, utterance, dec, session.OutcomeRejected)
	return dec, nil
}

// record appends the turn this decision concludes to the session.
func (e *Engine) record(sess *session.Session, utterance string, dec Decision, outcome session.Outcome) {
	e.manager.Append(sess, session.Turn{
		RawInput:   utterance,
		Capability: dec.Capability,
		Entities:   dec.Entities,
		Confidence: dec.Confidence,
		Outcome:    outcome,
	})
}

// clarifyPrompt builds the user-facing question for a missing slot.
func clarifyPrompt(d *registry.Descriptor, slot string) string {
	return fmt.Sprintf("Which %s should I use for %s?", slot, d.Name)
}
