package models

import (
	"strings"
	"time"
)

// Category classifies an event for browsing and filtering.
type Category string

// Possible event categories.
const (
	CategorySports      Category = "SPORTS"
	CategoryEducational Category = "EDUCATIONAL"
	CategorySocial      Category = "SOCIAL"
	CategoryFundraiser  Category = "FUNDRAISER"
	CategoryCultural    Category = "CULTURAL"
	CategoryOthers      Category = "OTHERS"
)

// ParseCategory normalises a raw category string. ok is false when the
// value is not a known category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case CategorySports, CategoryEducational, CategorySocial,
		CategoryFundraiser, CategoryCultural, CategoryOthers:
		return c, true
	}
	return "", false
}

// EventStatus reflects whether the waitlist is still accepting entrants.
type EventStatus string

const (
	EventStatusOpen   EventStatus = "OPEN"   // now < selection_time
	EventStatusClosed EventStatus = "CLOSED" // now >= selection_time
)

// Event is a listed event available for entry. Immutable after
// creation except for deletion by its organizer or an admin.
type Event struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Description      string    `db:"description" json:"description"`
	Category         Category  `db:"category" json:"category"`
	RequiresLocation bool      `db:"requires_location" json:"requires_location"`
	SelectionTime    time.Time `db:"selection_time" json:"selection_time"`
	EventTime        time.Time `db:"event_time" json:"event_time"`
	Organizer        string    `db:"organizer" json:"organizer"`
	SelectionLimit   int       `db:"selection_limit" json:"selection_limit"`
	EntrantLimit     *int      `db:"entrant_limit" json:"entrant_limit,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Status computes the waitlist status at the given instant.
func (e *Event) Status(now time.Time) EventStatus {
	if now.Before(e.SelectionTime) {
		return EventStatusOpen
	}
	return EventStatusClosed
}

// SelectionClosed reports whether enrollment has closed.
func (e *Event) SelectionClosed(now time.Time) bool {
	return !now.Before(e.SelectionTime)
}

// EventDetail enriches an Event with entrant list counts for detail views.
type EventDetail struct {
	Event
	EnrolledCount  int         `json:"enrolled_count"`
	SelectedCount  int         `json:"selected_count"`
	AcceptedCount  int         `json:"accepted_count"`
	CancelledCount int         `json:"cancelled_count"`
	WaitlistStatus EventStatus `json:"waitlist_status"`
}

// EventFilter provides filters for listing events.
type EventFilter struct {
	Organizer string
	Category  Category
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
