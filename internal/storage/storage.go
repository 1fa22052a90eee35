// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"github.com/pegazus-alpha/cent-bot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertGroupSetting(ctx context.Context, s *model.GroupSetting) error
	GetGroupSetting(ctx context.Context, groupID string) (*model.GroupSetting, error)
	ListGroupSettings(ctx context.Context) ([]model.GroupSetting, error)
	DeleteGroupSetting(ctx context.Context, groupID string) (bool, error)

	UpsertUser(ctx context.Context, u *model.User) error
	SaveMessage(ctx context.Context, m *model.Message) error
	ListGroupMembers(ctx context.Context, groupID string) ([]model.User, error)

	AppendModerationLog(ctx context.Context, entry *model.ModerationLog) error

	Close() error
}
