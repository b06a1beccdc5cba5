package models

import (
	"fmt"
	"strings"
)

// EntrantSet names one of the four membership sets of an entrant list.
type EntrantSet string

// The four entrant sets. Their string forms are the persisted values.
const (
	SetEnrolled  EntrantSet = "enrolled"
	SetSelected  EntrantSet = "selected"
	SetAccepted  EntrantSet = "accepted"
	SetCancelled EntrantSet = "cancelled"
)

// GeoPoint is an opaque coordinate attached to an enrollment when the
// event demands one. It is carried, never interpreted.
type GeoPoint struct {
	Lat float64 `db:"lat" json:"lat"`
	Lng float64 `db:"lng" json:"lng"`
}

// EntrantList holds the entrant membership sets for one event. Entrant
// identifiers are emails. Each slice is a set: no duplicates.
type EntrantList struct {
	EventID   string              `json:"event_id"`
	Enrolled  []string            `json:"enrolled_entrants"`
	Selected  []string            `json:"selected_entrants"`
	Accepted  []string            `json:"accepted_entrants"`
	Cancelled []string            `json:"cancelled_entrants"`
	Locations map[string]GeoPoint `json:"entrant_locations,omitempty"`
}

// NewEntrantList returns an empty entrant list for the given event.
func NewEntrantList(eventID string) *EntrantList {
	return &EntrantList{EventID: eventID}
}

// NormalizeEmail canonicalises an entrant identifier the way the
// original client did before set membership checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func contains(set []string, email string) bool {
	for _, e := range set {
		if e == email {
			return true
		}
	}
	return false
}

func difference(a []string, exclude ...[]string) []string {
	out := make([]string, 0, len(a))
outer:
	for _, e := range a {
		for _, ex := range exclude {
			if contains(ex, e) {
				continue outer
			}
		}
		out = append(out, e)
	}
	return out
}

// IsEnrolled reports membership in the enrolled set.
func (l *EntrantList) IsEnrolled(email string) bool { return contains(l.Enrolled, email) }

// IsSelected reports membership in the selected set.
func (l *EntrantList) IsSelected(email string) bool { return contains(l.Selected, email) }

// IsAccepted reports membership in the accepted set.
func (l *EntrantList) IsAccepted(email string) bool { return contains(l.Accepted, email) }

// IsCancelled reports membership in the cancelled set.
func (l *EntrantList) IsCancelled(email string) bool { return contains(l.Cancelled, email) }

// CandidatePool returns the entrants eligible for an initial draw:
// enrolled but not yet selected.
func (l *EntrantList) CandidatePool() []string {
	return difference(l.Enrolled, l.Selected)
}

// ReplacementPool returns the entrants eligible for a redraw: enrolled
// entrants never drawn and not already resolved. Entrants who cancelled
// were winners at one point and do not re-enter the pool.
func (l *EntrantList) ReplacementPool() []string {
	return difference(l.Enrolled, l.Selected, l.Accepted, l.Cancelled)
}

// Validate checks the structural invariants of the entrant list against
// the event's limits. A violation indicates a bug in the orchestration
// layer; callers are expected to fail loudly rather than repair state.
func (l *EntrantList) Validate(selectionLimit int, entrantLimit *int) error {
	for _, set := range []struct {
		name    EntrantSet
		members []string
	}{
		{SetEnrolled, l.Enrolled},
		{SetSelected, l.Selected},
		{SetAccepted, l.Accepted},
		{SetCancelled, l.Cancelled},
	} {
		seen := make(map[string]struct{}, len(set.members))
		for _, e := range set.members {
			if _, dup := seen[e]; dup {
				return fmt.Errorf("entrant %q appears twice in %s", e, set.name)
			}
			seen[e] = struct{}{}
		}
	}

	for _, set := range []struct {
		name    EntrantSet
		members []string
	}{
		{SetSelected, l.Selected},
		{SetAccepted, l.Accepted},
		{SetCancelled, l.Cancelled},
	} {
		for _, e := range set.members {
			if !contains(l.Enrolled, e) {
				return fmt.Errorf("entrant %q in %s but not enrolled", e, set.name)
			}
		}
	}

	for _, e := range l.Accepted {
		if contains(l.Cancelled, e) {
			return fmt.Errorf("entrant %q in both accepted and cancelled", e)
		}
	}

	// Accepted and cancelled entrants must have been selected at some
	// point. Cancelled entrants are removed from selected when they
	// cancel, so only accepted entrants are required to still be there.
	for _, e := range l.Accepted {
		if !contains(l.Selected, e) {
			return fmt.Errorf("entrant %q accepted without being selected", e)
		}
	}

	if len(l.Selected) > selectionLimit {
		return fmt.Errorf("selected count %d exceeds selection limit %d", len(l.Selected), selectionLimit)
	}
	if entrantLimit != nil && len(l.Enrolled) > *entrantLimit {
		return fmt.Errorf("enrolled count %d exceeds entrant limit %d", len(l.Enrolled), *entrantLimit)
	}

	return nil
}
