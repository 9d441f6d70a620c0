// Package extract pulls structured parameter values out of a free-form
// utterance and aligns them to a capability's declared slots.
//
// Extraction is rule-based and descriptor-specific: the same utterance may
// populate different slots depending on which capability it is being
// extracted for ("weather" reads a location out of a trailing "in New York",
// "wiki" reads the same trailing phrase as a freetext topic). A slot with no
// match is simply left unset; deciding what to do about unset required slots
// is the resolution engine's job, not ours.
package extract

import (
	"regexp"
	"strings"

	"aida/internal/registry"
)

// Entity is one extracted (slot, value) pair together with the span of the
// utterance it was taken from. Spans are byte offsets into the original
// utterance.
type Entity struct {
	Slot  string
	Value string
	Start int
	End   int
}

// locationRe captures a capitalized place name after a positional cue word.
// Multi-word places ("New York", "Rio de Janeiro") are kept together.
var locationRe = regexp.MustCompile(`\b(?:in|at|near|for|about|to)\s+((?:[A-Z][\w'.-]*)(?:\s+(?:[A-Z][\w'.-]*|de|del|of|the|la|le))*)`)

// trailingProperRe captures a capitalized word sequence at the end of the
// utterance, used as a location fallback for elliptical inputs such as
// "how about London?".
var trailingProperRe = regexp.MustCompile(`((?:[A-Z][\w'.-]*)(?:\s+[A-Z][\w'.-]*)*)[?!.\s]*$`)

// personRe captures the subject of a "who is X" style question.
var personRe = regexp.MustCompile(`(?i)\b(?:who is|who's|whois|tell me about|about)\s+(.+?)[?!.]*$`)

// datetimeRe matches the date/time shapes the rule-based extractor
// understands: relative day words, ISO dates, and clock times.
var datetimeRe = regexp.MustCompile(`(?i)\b(?:today|tomorrow|yesterday|tonight|now|\d{4}-\d{2}-\d{2}|\d{1,2}:\d{2}(?::\d{2})?\s*(?:am|pm)?|\d{1,2}\s*(?:am|pm))\b`)

// numberRe matches integers and decimals.
var numberRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// freetextCues are words that typically introduce the payload of a search or
// lookup request. The text after the last cue is taken as the freetext value.
var freetextCues = []string{" for ", " about ", " on ", " of ", " called ", " named ", " say "}

// stopWords are dropped when falling back to content-word extraction.
var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "at": {}, "which": {}, "on": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "but": {}, "in": {}, "with": {}, "to": {}, "for": {},
	"of": {}, "as": {}, "by": {}, "me": {}, "my": {}, "i": {}, "you": {},
	"what": {}, "whats": {}, "how": {}, "show": {}, "tell": {}, "find": {},
	"search": {}, "please": {}, "can": {}, "could": {}, "do": {}, "does": {},
	"some": {}, "it": {}, "this": {}, "that": {}, "like": {}, "about": {},
}

// Entities extracts every candidate entity for the descriptor's slots.
// Multiple entities may target the same slot; Extract keeps the longest.
func Entities(utterance string, d *registry.Descriptor) []Entity {
	var out []Entity
	for _, slot := range d.Slots {
		for _, e := range entitiesForSlot(utterance, d, slot) {
			out = append(out, e)
		}
	}
	return out
}

// Extract returns the best value per slot: the longest (most specific) span
// among all candidate entities for that slot. Slots with no match are absent
// from the returned map. The map is never nil.
func Extract(utterance string, d *registry.Descriptor) map[string]string {
	best := make(map[string]string)
	for _, e := range Entities(utterance, d) {
		if cur, ok := best[e.Slot]; !ok || len(e.Value) > len(cur) {
			best[e.Slot] = e.Value
		}
	}
	return best
}

// AnswerValue interprets a short clarification answer as a value for a slot
// of the given type. Unlike Extract it accepts bare answers ("London",
// "Albert Einstein") that carry no syntactic cue at all. Returns "" when the
// utterance cannot plausibly be an answer of that type.
func AnswerValue(utterance string, t registry.SlotType) string {
	trimmed := strings.TrimSpace(utterance)
	switch t {
	case registry.SlotDatetime:
		return datetimeRe.FindString(trimmed)
	case registry.SlotNumber:
		return numberRe.FindString(trimmed)
	}

	// Strip leading cue phrases ("in", "how about", ...) and punctuation so a
	// bare answer survives intact.
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"how about", "what about", "in", "at", "for", "about", "it is", "its", "it's"} {
		if strings.HasPrefix(lower, prefix+" ") {
			trimmed = strings.TrimSpace(trimmed[len(prefix):])
			break
		}
	}
	trimmed = strings.Trim(trimmed, "?!. ")
	if trimmed == "" {
		return ""
	}

	// A clarification answer is expected to be short. Anything longer reads
	// as a fresh request and should go back through classification.
	if len(strings.Fields(trimmed)) > 5 {
		return ""
	}
	return trimmed
}

// entitiesForSlot applies the heuristics for one slot.
func entitiesForSlot(utterance string, d *registry.Descriptor, slot registry.Slot) []Entity {
	switch slot.Type {
	case registry.SlotLocation:
		return locationEntities(utterance, slot.Name)
	case registry.SlotPerson:
		return personEntities(utterance, slot.Name)
	case registry.SlotFreetext:
		return freetextEntities(utterance, d, slot.Name)
	case registry.SlotDatetime:
		return regexEntities(utterance, slot.Name, datetimeRe)
	case registry.SlotNumber:
		return regexEntities(utterance, slot.Name, numberRe)
	}
	return nil
}

func locationEntities(utterance, slot string) []Entity {
	var out []Entity
	for _, m := range locationRe.FindAllStringSubmatchIndex(utterance, -1) {
		start, end := m[2], m[3]
		out = append(out, Entity{Slot: slot, Value: utterance[start:end], Start: start, End: end})
	}
	if len(out) > 0 {
		return out
	}
	// Fallback: trailing capitalized sequence ("how about London?"). The
	// whole-utterance match is rejected so plain sentences don't turn into
	// locations.
	if m := trailingProperRe.FindStringSubmatchIndex(utterance); m != nil {
		start, end := m[2], m[3]
		if start > 0 {
			out = append(out, Entity{Slot: slot, Value: utterance[start:end], Start: start, End: end})
		}
	}
	return out
}

func personEntities(utterance, slot string) []Entity {
	var out []Entity
	if m := personRe.FindStringSubmatchIndex(utterance); m != nil {
		start, end := m[2], m[3]
		value := strings.Trim(utterance[start:end], "?!. ")
		if value != "" {
			out = append(out, Entity{Slot: slot, Value: value, Start: start, End: start + len(value)})
		}
	}
	return out
}

func freetextEntities(utterance string, d *registry.Descriptor, slot string) []Entity {
	lower := strings.ToLower(utterance)

	// Prefer the text after the last cue word ("search youtube for music" →
	// "music").
	cueIdx, cueLen := -1, 0
	for _, cue := range freetextCues {
		if idx := strings.LastIndex(lower, cue); idx > cueIdx {
			cueIdx, cueLen = idx, len(cue)
		}
	}
	if cueIdx >= 0 {
		start := cueIdx + cueLen
		value := strings.Trim(utterance[start:], "?!. ")
		if value != "" {
			return []Entity{{Slot: slot, Value: value, Start: start, End: start + len(value)}}
		}
	}

	// Fallback: content words minus stop words and the descriptor's own
	// keywords, mirroring the original keyword-stripping heuristic.
	keywords := make(map[string]struct{}, len(d.Keywords))
	for _, k := range d.Keywords {
		keywords[strings.ToLower(k)] = struct{}{}
	}
	var terms []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, "?!.,'\"")
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, kw := keywords[w]; kw {
			continue
		}
		if w == strings.ToLower(d.Name) {
			continue
		}
		terms = append(terms, w)
	}
	if len(terms) == 0 {
		return nil
	}
	value := strings.Join(terms, " ")
	return []Entity{{Slot: slot, Value: value, Start: 0, End: len(utterance)}}
}

func regexEntities(utterance, slot string, re *regexp.Regexp) []Entity {
	var out []Entity
	for _, m := range re.FindAllStringIndex(utterance, -1) {
		out = append(out, Entity{Slot: slot, Value: utterance[m[0]:m[1]], Start: m[0], End: m[1]})
	}
	return out
}
