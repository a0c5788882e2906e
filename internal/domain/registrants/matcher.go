package registrants

import (
	"context"
	"strings"
	"unicode"
)

// Matcher resolves a free-text name plus phone number to a unique registrant.
//
// Real submissions arrive with every segmentation imaginable: nicknames,
// compound surnames, a lone first name, reordered tokens. Strict equality
// produces unacceptable false negatives for this audience, so matching is
// tiered: an exact first/last structure match is tried first, then a broad
// any-token containment match. The phone number must match exactly in both
// tiers; it is what keeps the fuzziness honest.
type Matcher struct {
	repo Repository
}

func NewMatcher(repo Repository) *Matcher {
	return &Matcher{repo: repo}
}

// Resolve returns the first registrant matching the name/phone pair, or
// ErrNotFound. When several registrants collide on phone and name fragments,
// the first in store order wins; full disambiguation is out of scope.
func (m *Matcher) Resolve(ctx context.Context, name, phone string) (*Registrant, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrNotFound
	}

	candidates, err := m.repo.FindByPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	name = strings.TrimSpace(name)
	tokens := strings.Fields(name)

	if len(tokens) == 2 {
		if found := matchExactStructure(candidates, tokens[0], tokens[1]); found != nil {
			return found, nil
		}
	}

	if found := matchBroad(candidates, name, tokens); found != nil {
		return found, nil
	}
	return nil, ErrNotFound
}

// matchExactStructure matches token[0] against the first-name field and
// token[1] against the last-name field, both as case-insensitive containment.
func matchExactStructure(candidates []Registrant, first, last string) *Registrant {
	for i := range candidates {
		c := &candidates[i]
		if containsFold(c.FirstName, first) && containsFold(c.LastName, last) {
			return c
		}
	}
	return nil
}

// matchBroad accepts the whole name string, or any single token of it,
// contained in either name field.
func matchBroad(candidates []Registrant, name string, tokens []string) *Registrant {
	for i := range candidates {
		c := &candidates[i]
		if name != "" && (containsFold(c.FirstName, name) || containsFold(c.LastName, name)) {
			return c
		}
		for _, token := range tokens {
			if containsFold(c.FirstName, token) || containsFold(c.LastName, token) {
				return c
			}
		}
	}
	return nil
}

func containsFold(field, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(needle))
}

// NormalizePhone strips every non-digit rune. Submissions carry dashes,
// spaces, and the occasional country prefix punctuation; storage and matching
// both use the digit-only form.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
