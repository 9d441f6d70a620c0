package session

import (
	"aida/internal/extract"
	"aida/internal/registry"
)

// FollowUp is the result of resolving an elliptical utterance ("how about
// London?") against the session's most recent executed turn: the same
// capability again, with freshly extracted entities merged over the prior
// turn's.
type FollowUp struct {
	Descriptor *registry.Descriptor
	Entities   map[string]string
	// Confidence carried over from the prior executed turn.
	Confidence float64
}

// ResolveFollowUp treats the utterance as a parameter update against the
// capability of the session's most recent turn. It applies only when that
// turn executed successfully; new entity values overwrite prior ones for the
// same slot. Returns nil when the session has no executed turn to follow up
// on, the capability is no longer registered, or the utterance contributes
// no new parameter values.
//
// The caller decides *whether* follow-up applies (the utterance must lack a
// capability signal of its own); this function only answers *what* the
// follow-up would resolve to.
func ResolveFollowUp(sess *Session, utterance string, reg *registry.Registry) *FollowUp {
	last, ok := sess.Last()
	if !ok || last.Outcome != OutcomeExecuted || last.Capability == "" {
		return nil
	}
	d, ok := reg.Get(last.Capability)
	if !ok {
		return nil
	}

	fresh := extract.Extract(utterance, d)

	// An elliptical answer with no slot syntax at all ("London?") can still
	// fill a single missing slot by type.
	if len(fresh) == 0 {
		for _, slot := range d.Slots {
			if v := extract.AnswerValue(utterance, slot.Type); v != "" {
				fresh[slot.Name] = v
				break
			}
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	merged := make(map[string]string, len(last.Entities)+len(fresh))
	for k, v := range last.Entities {
		merged[k] = v
	}
	for k, v := range fresh {
		merged[k] = v
	}

	return &FollowUp{
		Descriptor: d,
		Entities:   merged,
		Confidence: last.Confidence,
	}
}
