package domain

import (
	"strings"
	"time"
)

// EnrichedTicket is a ticket plus the normalized text used for equivalence
// comparison. Immutable once built within a single detection run.
type EnrichedTicket struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	Email       string          `json:"email"`
	CreatedTime time.Time       `json:"createdTime"`
	Content     string          `json:"content"`
	Messages    []ThreadMessage `json:"messages,omitempty"`
	IsDuplicate bool            `json:"isDuplicate"`
}

// MatchPolicy names the equivalence-key granularity that produced a match.
type MatchPolicy string

const (
	// PolicyFull matches on subject + email + content.
	PolicyFull MatchPolicy = "full"
	// PolicyLoose matches on email + content, ignoring the subject.
	PolicyLoose MatchPolicy = "loose"
)

// MatchKey is the structured equivalence key for duplicate grouping.
type MatchKey struct {
	Policy  MatchPolicy
	Subject string
	Email   string
	Content string
}

// FullKey builds the subject+email+content key for a ticket.
func FullKey(t EnrichedTicket) MatchKey {
	return MatchKey{Policy: PolicyFull, Subject: t.Subject, Email: t.Email, Content: t.Content}
}

// LooseKey builds the email+content key for a ticket.
func LooseKey(t EnrichedTicket) MatchKey {
	return MatchKey{Policy: PolicyLoose, Email: t.Email, Content: t.Content}
}

// String renders the key in the upstream wire form.
func (k MatchKey) String() string {
	if k.Policy == PolicyLoose {
		return k.Email + "|" + k.Content
	}
	return k.Subject + "|" + k.Email + "|" + k.Content
}

// Eligible reports whether the key may participate in matching. Tickets
// whose enrichment degraded to empty content never match each other.
func (k MatchKey) Eligible() bool {
	return strings.TrimSpace(k.Content) != ""
}

// DuplicateGroup is one original plus the later tickets matched to it.
// Duplicates are sorted by CreatedTime ascending and the original is never
// later than any of them.
type DuplicateGroup struct {
	MatchKey   MatchKey
	Original   EnrichedTicket
	Duplicates []EnrichedTicket
}

// DuplicateIDs returns the ids of the non-original members.
func (g DuplicateGroup) DuplicateIDs() []string {
	ids := make([]string, 0, len(g.Duplicates))
	for _, d := range g.Duplicates {
		ids = append(ids, d.ID)
	}
	return ids
}

// TimeRange is the min/max created time across all tickets considered.
// A range over zero tickets has both pointers nil.
type TimeRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}

// RangeOf computes the time range over a set of enriched tickets.
func RangeOf(tickets []EnrichedTicket) TimeRange {
	if len(tickets) == 0 {
		return TimeRange{}
	}
	earliest, latest := tickets[0].CreatedTime, tickets[0].CreatedTime
	for _, t := range tickets[1:] {
		if t.CreatedTime.Before(earliest) {
			earliest = t.CreatedTime
		}
		if t.CreatedTime.After(latest) {
			latest = t.CreatedTime
		}
	}
	return TimeRange{Earliest: &earliest, Latest: &latest}
}

// DuplicateMarker is prepended to duplicate subjects for display.
const DuplicateMarker = "[DUP]"

// MarkDuplicateSubject prefixes the marker, idempotently.
func MarkDuplicateSubject(subject string) string {
	if strings.Contains(subject, DuplicateMarker) {
		return subject
	}
	return DuplicateMarker + " " + subject
}
