// Package settings implements the group settings store: a read-through cache
// over durable storage. The cache serves every read; every mutation writes
// the durable store first and only then the cache, so a crash between the
// two leaves a stale cache miss, never a phantom update.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pegazus-alpha/cent-bot/internal/model"
	"github.com/pegazus-alpha/cent-bot/internal/storage"
)

// DefaultWelcomeMessage seeds the template the first time welcome messages
// are toggled on for a group that never had one configured.
const DefaultWelcomeMessage = "Welcome to @group, @user!"

// Store is the cached group settings store.
type Store struct {
	db  storage.Storage
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]model.GroupSetting
}

// New creates a Store and loads the cache from durable storage.
func New(ctx context.Context, db storage.Storage, log *slog.Logger) (*Store, error) {
	s := &Store{
		db:    db,
		log:   log,
		cache: make(map[string]model.GroupSetting),
	}
	if err := s.ReloadAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ReloadAll replaces the cache with the durable store's contents.
func (s *Store) ReloadAll(ctx context.Context) error {
	all, err := s.db.ListGroupSettings(ctx)
	if err != nil {
		return fmt.Errorf("load group settings: %w", err)
	}

	s.mu.Lock()
	s.cache = make(map[string]model.GroupSetting, len(all))
	for _, gs := range all {
		s.cache[gs.GroupID] = gs
	}
	s.mu.Unlock()

	s.log.Info("group settings cache loaded", "groups", len(all))
	return nil
}

// Get returns a group's settings from the cache.
func (s *Store) Get(groupID string) (model.GroupSetting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.cache[groupID]
	return gs, ok
}

// List returns all cached settings sorted by group name.
func (s *Store) List() []model.GroupSetting {
	s.mu.RLock()
	out := make([]model.GroupSetting, 0, len(s.cache))
	for _, gs := range s.cache {
		out = append(out, gs)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupName != out[j].GroupName {
			return out[i].GroupName < out[j].GroupName
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}

// Upsert persists a group's settings and refreshes the cache.
func (s *Store) Upsert(ctx context.Context, gs model.GroupSetting) error {
	if prev, ok := s.Get(gs.GroupID); ok {
		gs.CreatedAt = prev.CreatedAt
	}
	if err := s.db.UpsertGroupSetting(ctx, &gs); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[gs.GroupID] = gs
	s.mu.Unlock()
	return nil
}

// Delete removes a group's settings and reports whether a row existed.
func (s *Store) Delete(ctx context.Context, groupID string) (bool, error) {
	existed, err := s.db.DeleteGroupSetting(ctx, groupID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.cache, groupID)
	s.mu.Unlock()
	return existed, nil
}

// Register records a group the bot is a member of. New groups start with all
// toggles disabled; known groups only get a stale name refreshed.
func (s *Store) Register(ctx context.Context, groupID, groupName string) error {
	gs, ok := s.Get(groupID)
	if ok {
		if gs.GroupName == groupName || groupName == "" {
			return nil
		}
		gs.GroupName = groupName
		return s.Upsert(ctx, gs)
	}

	s.log.Info("registering group", "group_id", groupID, "name", groupName)
	return s.Upsert(ctx, model.GroupSetting{GroupID: groupID, GroupName: groupName})
}

// IsWelcomeEnabled reports whether welcome messages are on for a group.
// Unknown groups read as disabled.
func (s *Store) IsWelcomeEnabled(groupID string) bool {
	gs, ok := s.Get(groupID)
	return ok && gs.WelcomeEnabled
}

// WelcomeMessage returns the welcome template, or false when welcome
// messages are disabled. A stored template of a disabled group is inert.
func (s *Store) WelcomeMessage(groupID string) (string, bool) {
	gs, ok := s.Get(groupID)
	if !ok || !gs.WelcomeEnabled {
		return "", false
	}
	return gs.WelcomeMessage, true
}

// IsGoodbyeEnabled reports whether goodbye messages are on for a group.
func (s *Store) IsGoodbyeEnabled(groupID string) bool {
	gs, ok := s.Get(groupID)
	return ok && gs.GoodbyeEnabled
}

// GoodbyeMessage returns the goodbye template, or false when disabled.
func (s *Store) GoodbyeMessage(groupID string) (string, bool) {
	gs, ok := s.Get(groupID)
	if !ok || !gs.GoodbyeEnabled {
		return "", false
	}
	return gs.GoodbyeMessage, true
}

// ToggleWelcome flips the welcome toggle and returns the new state. The
// stored template is left untouched; a group toggled on for the first time
// gets the default template.
func (s *Store) ToggleWelcome(ctx context.Context, groupID, groupName string) (bool, error) {
	gs, ok := s.Get(groupID)
	if !ok {
		gs = model.GroupSetting{GroupID: groupID, GroupName: groupName, WelcomeMessage: DefaultWelcomeMessage}
	}
	gs.WelcomeEnabled = !gs.WelcomeEnabled
	if groupName != "" {
		gs.GroupName = groupName
	}
	if err := s.Upsert(ctx, gs); err != nil {
		return false, err
	}
	return gs.WelcomeEnabled, nil
}

// SetWelcomeMessage replaces the welcome template without changing the
// enabled state.
func (s *Store) SetWelcomeMessage(ctx context.Context, groupID, groupName, message string) error {
	gs, ok := s.Get(groupID)
	if !ok {
		gs = model.GroupSetting{GroupID: groupID, GroupName: groupName}
	}
	gs.WelcomeMessage = message
	if groupName != "" {
		gs.GroupName = groupName
	}
	return s.Upsert(ctx, gs)
}

// SetWelcome sets the enabled state and template in one write.
func (s *Store) SetWelcome(ctx context.Context, groupID, groupName string, enabled bool, message string) error {
	gs, ok := s.Get(groupID)
	if !ok {
		gs = model.GroupSetting{GroupID: groupID}
	}
	gs.WelcomeEnabled = enabled
	gs.WelcomeMessage = message
	if groupName != "" {
		gs.GroupName = groupName
	}
	return s.Upsert(ctx, gs)
}

// SetGoodbye sets the goodbye state and template in one write.
func (s *Store) SetGoodbye(ctx context.Context, groupID, groupName string, enabled bool, message string) error {
	gs, ok := s.Get(groupID)
	if !ok {
		gs = model.GroupSetting{GroupID: groupID}
	}
	gs.GoodbyeEnabled = enabled
	gs.GoodbyeMessage = message
	if groupName != "" {
		gs.GroupName = groupName
	}
	return s.Upsert(ctx, gs)
}
