package scoring

import (
	"strings"
)

// actionItems returns the distinct phrases matched by the action patterns,
// in order of first appearance, capped at MaxActionItems.
func (e *Engine) actionItems(text string) []string {
	type hit struct {
		pos  int
		text string
	}
	var hits []hit
	seen := make(map[string]bool)
	for _, re := range e.actions {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			s := strings.Join(strings.Fields(text[loc[0]:loc[1]]), " ")
			if len(s) <= 5 || seen[s] {
				continue
			}
			seen[s] = true
			hits = append(hits, hit{pos: loc[0], text: s})
		}
	}
	// Stable insertion sort by position; the list is short.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	limit := e.tax.MaxActionItems
	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	out := make([]string, 0, limit)
	for _, h := range hits[:limit] {
		out = append(out, h.text)
	}
	return out
}

// needsReply reports whether the sender expects an answer: a question mark,
// an extracted action item, a request phrase, or a reply/forward subject.
func (e *Engine) needsReply(rawSubject, rawBody string, in input, actions []string) bool {
	if strings.Contains(rawSubject, "?") || strings.Contains(rawBody, "?") {
		return true
	}
	if len(actions) > 0 {
		return true
	}
	for _, p := range e.requests {
		if e.weighted(p, in) > 0 {
			return true
		}
	}
	subj := strings.ToLower(strings.TrimSpace(rawSubject))
	for _, prefix := range []string{"re:", "fw:", "fwd:"} {
		if strings.HasPrefix(subj, prefix) {
			return true
		}
	}
	return false
}

// acknowledgement reports whether the text matches a safe pattern such as
// "thanks" or "received".
func (e *Engine) acknowledgement(in input) bool {
	for _, p := range e.safe {
		if e.weighted(p, in) > 0 {
			return true
		}
	}
	return false
}
