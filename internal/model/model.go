// Package model defines the domain types used across the application.
package model

import "time"

// GroupSetting holds the per-group welcome and goodbye configuration.
// A group without a stored row is treated as fully disabled.
type GroupSetting struct {
	GroupID        string
	GroupName      string
	WelcomeEnabled bool
	WelcomeMessage string
	GoodbyeEnabled bool
	GoodbyeMessage string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is a chat participant the bot has observed.
type User struct {
	JID       string
	Name      string
	Role      string
	FirstSeen time.Time
}

// MediaKind classifies a message attachment.
type MediaKind string

// Supported media kinds.
const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// Message is a stored inbound message.
type Message struct {
	ID        string
	JID       string
	GroupID   string
	Body      string
	Media     MediaKind
	Timestamp time.Time
}

// ModerationLog is one append-only audit entry for a moderation action.
// The log is never consulted for decisions.
type ModerationLog struct {
	ID        int64
	JID       string
	Action    string
	Reason    string
	Timestamp time.Time
}
