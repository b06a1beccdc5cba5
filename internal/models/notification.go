package models

import (
	"strings"
	"time"
)

// Channel is the broadcast category a notification is addressed to.
// Membership is evaluated lazily per entrant at read time, not at write
// time. The string forms are stable API values.
type Channel string

// Broadcast channels.
const (
	ChannelAll       Channel = "All"
	ChannelWinners   Channel = "Winners"
	ChannelLosers    Channel = "Losers"
	ChannelCancelled Channel = "Cancelled"
)

// ParseChannel normalises a raw channel string. ok is false when the
// value is not a known channel.
func ParseChannel(raw string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all":
		return ChannelAll, true
	case "winners":
		return ChannelWinners, true
	case "losers":
		return ChannelLosers, true
	case "cancelled":
		return ChannelCancelled, true
	}
	return "", false
}

// Notification is an append-only record of one broadcast message. It is
// created once and mutated only by growing SeenBy.
type Notification struct {
	ID           string    `db:"id" json:"id"`
	EventID      string    `db:"event_id" json:"event_id"`
	Channel      Channel   `db:"channel" json:"channel"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	CreationTime time.Time `db:"creation_time" json:"creation_time"`
	SeenBy       []string  `json:"seen_by"`
}

// HasSeen reports whether the entrant has acknowledged this notification.
func (n *Notification) HasSeen(email string) bool {
	return contains(n.SeenBy, NormalizeEmail(email))
}
