// Package platform defines the messaging platform contract the core talks
// to, plus the inbound event types. Implementations live alongside it; the
// core only sees these interfaces and never a platform SDK type.
package platform

import (
	"context"

	"github.com/pegazus-alpha/cent-bot/internal/model"
)

// Role is a participant's role inside a group.
type Role string

// Participant roles.
const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Participant is one entry of a group roster.
type Participant struct {
	ID   string
	Name string
	Role Role
}

// IsAdmin reports whether the participant holds admin or super-admin role.
func (p Participant) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// MessageRef identifies a message for deletion.
type MessageRef struct {
	ChatID    string
	MessageID string
}

// Message is an inbound chat message, normalized across platforms.
type Message struct {
	Ref        MessageRef
	ChatID     string
	SenderID   string
	SenderName string
	IsGroup    bool
	GroupName  string
	Text       string
	Media      model.MediaKind
	Mentions   []string
}

// MemberAction is what happened to group members.
type MemberAction string

// Membership changes.
const (
	MemberAdd     MemberAction = "add"
	MemberRemove  MemberAction = "remove"
	MemberPromote MemberAction = "promote"
	MemberDemote  MemberAction = "demote"
)

// Member is one affected participant of a membership event. IsSelf marks the
// bot's own account, so the core can tell "bot was removed" from an ordinary
// leave.
type Member struct {
	ID     string
	Name   string
	IsSelf bool
}

// MemberEvent reports a group membership change.
type MemberEvent struct {
	GroupID   string
	GroupName string
	Action    MemberAction
	Members   []Member
}

// GroupUpdate reports a group metadata change (currently renames).
type GroupUpdate struct {
	GroupID string
	Name    string
}

// Event is one inbound platform event; exactly one field is set.
type Event struct {
	Message *Message
	Member  *MemberEvent
	Group   *GroupUpdate
}

// ParticipantOp is a membership mutation the bot can request.
type ParticipantOp string

// Participant operations.
const (
	OpRemove  ParticipantOp = "remove"
	OpPromote ParticipantOp = "promote"
	OpDemote  ParticipantOp = "demote"
)

// Messenger is the outbound platform contract. All methods are fallible and
// never panic; callers log and degrade.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	FetchRoster(ctx context.Context, groupID string) ([]Participant, error)
	UpdateParticipant(ctx context.Context, groupID string, ids []string, op ParticipantOp) error
}
