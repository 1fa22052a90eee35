// Package moderation implements the message moderation decision engine.
//
// The engine decides, it does not act: callers execute the returned action
// against the platform and write the audit log. Its configuration is
// process-wide and mutable at runtime through the setter API; a /setblock in
// one group deliberately affects every group the bot serves.
package moderation

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pegazus-alpha/cent-bot/internal/model"
)

// Action is what the caller should do with the message.
type Action int

// Possible moderation outcomes.
const (
	ActionNone Action = iota
	ActionDelete
	ActionWarn
	ActionKick
)

// String returns the audit-log name of the action.
func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete_message"
	case ActionWarn:
		return "warn"
	case ActionKick:
		return "kick"
	default:
		return "none"
	}
}

// Decision is the outcome of evaluating one message.
type Decision struct {
	Action Action
	Reason string
}

// FloodAction selects what happens when the flood limit is exceeded.
type FloodAction string

// Supported flood actions.
const (
	FloodWarn FloodAction = "warn"
	FloodKick FloodAction = "kick"
)

// FloodConfig tunes the anti-flood check.
type FloodConfig struct {
	Enabled      bool
	MessageLimit int
	TimeFrame    time.Duration
	Action       FloodAction
}

// Category names a blockable content category for SetBlock.
type Category string

// Blockable categories.
const (
	CategoryImages      Category = "images"
	CategoryVideos      Category = "videos"
	CategoryAudio       Category = "audio"
	CategoryDocs        Category = "docs"
	CategoryLinks       Category = "links"
	CategoryInviteLinks Category = "invitelinks"
	CategoryMentions    Category = "mentions"
)

// Config is the engine's runtime configuration.
type Config struct {
	BlockImages      bool
	BlockVideos      bool
	BlockAudio       bool
	BlockDocs        bool
	BlockLinks       bool
	BlockInviteLinks bool
	BlockMentions    bool
	BannedWords      []string
	AntiFlood        FloodConfig
}

// DefaultConfig mirrors the shipped defaults: only group invite links are
// blocked, anti-flood warns at 5 messages per 10 seconds.
func DefaultConfig() Config {
	return Config{
		BlockInviteLinks: true,
		AntiFlood: FloodConfig{
			Enabled:      true,
			MessageLimit: 5,
			TimeFrame:    10 * time.Second,
			Action:       FloodWarn,
		},
	}
}

// Message is the part of an inbound message the engine looks at.
type Message struct {
	Text        string
	Media       model.MediaKind
	HasMentions bool
}

var (
	inviteLinkRe = regexp.MustCompile(`(?i)(?:chat\.whatsapp\.com/[A-Za-z0-9]{22}|t\.me/(?:joinchat/|\+)[A-Za-z0-9_-]+)`)
	genericURLRe = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
)

// Engine evaluates messages against the moderation rules.
type Engine struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	cfg     Config
	banned  map[string]struct{}
	windows map[string][]time.Time
}

// New creates an Engine with the given initial configuration.
func New(cfg Config, log *slog.Logger) *Engine {
	e := &Engine{
		log:     log,
		now:     time.Now,
		cfg:     cfg,
		banned:  make(map[string]struct{}),
		windows: make(map[string][]time.Time),
	}
	for _, w := range cfg.BannedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			e.banned[w] = struct{}{}
		}
	}
	return e
}

// SetClock overrides the time source (useful for testing flood windows).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetBlock turns a content category on or off.
func (e *Engine) SetBlock(cat Category, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch cat {
	case CategoryImages:
		e.cfg.BlockImages = on
	case CategoryVideos:
		e.cfg.BlockVideos = on
	case CategoryAudio:
		e.cfg.BlockAudio = on
	case CategoryDocs:
		e.cfg.BlockDocs = on
	case CategoryLinks:
		e.cfg.BlockLinks = on
	case CategoryInviteLinks:
		e.cfg.BlockInviteLinks = on
	case CategoryMentions:
		e.cfg.BlockMentions = on
	default:
		return fmt.Errorf("unknown block category %q", cat)
	}
	return nil
}

// AddBannedWord adds a word to the banned set and reports whether it was new.
func (e *Engine) AddBannedWord(word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.banned[word]; ok {
		return false
	}
	e.banned[word] = struct{}{}
	return true
}

// RemoveBannedWord removes a word and reports whether it was present.
func (e *Engine) RemoveBannedWord(word string) bool {
	word = strings.ToLower(strings.TrimSpace(word))
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.banned[word]; !ok {
		return false
	}
	delete(e.banned, word)
	return true
}

// SetFlood replaces the anti-flood configuration.
func (e *Engine) SetFlood(cfg FloodConfig) {
	e.mu.Lock()
	e.cfg.AntiFlood = cfg
	e.mu.Unlock()
}

// Snapshot returns a copy of the current configuration with the banned words
// sorted.
func (e *Engine) Snapshot() Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	cfg.BannedWords = make([]string, 0, len(e.banned))
	for w := range e.banned {
		cfg.BannedWords = append(cfg.BannedWords, w)
	}
	sort.Strings(cfg.BannedWords)
	return cfg
}

// Evaluate runs the moderation checks in order and returns the first match.
//
// Anti-flood runs first and short-circuits the content rules when it
// triggers. Content rules are skipped entirely for admins; the flood window
// still records admin messages, and a flood kick degrades to a logged no-op
// when the sender is an admin.
func (e *Engine) Evaluate(groupID, senderID string, msg Message, senderIsAdmin bool) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, triggered := e.checkFlood(groupID, senderID, senderIsAdmin); triggered {
		return d
	}

	if senderIsAdmin {
		return Decision{Action: ActionNone}
	}
	return e.checkContent(msg)
}

// checkFlood records the message timestamp, prunes the window, and reports
// whether the flood limit was exceeded. The window is cleared on a trigger
// regardless of the action taken, so a burst yields one action, not one per
// message.
func (e *Engine) checkFlood(groupID, senderID string, senderIsAdmin bool) (Decision, bool) {
	cfg := e.cfg.AntiFlood
	if !cfg.Enabled {
		return Decision{}, false
	}

	key := groupID + "|" + senderID
	now := e.now()

	window := append(e.windows[key], now)
	pruned := window[:0]
	for _, ts := range window {
		if now.Sub(ts) < cfg.TimeFrame {
			pruned = append(pruned, ts)
		}
	}
	e.windows[key] = pruned

	if len(pruned) <= cfg.MessageLimit {
		return Decision{}, false
	}

	e.log.Info("flood detected", "group_id", groupID, "sender", senderID, "messages", len(pruned))
	e.windows[key] = nil

	if cfg.Action == FloodKick {
		if senderIsAdmin {
			e.log.Info("flood kick skipped for admin", "group_id", groupID, "sender", senderID)
			return Decision{Action: ActionNone}, true
		}
		return Decision{Action: ActionKick, Reason: "flood"}, true
	}
	return Decision{Action: ActionWarn, Reason: "flood"}, true
}

func (e *Engine) checkContent(msg Message) Decision {
	lower := strings.ToLower(msg.Text)
	for w := range e.banned {
		if strings.Contains(lower, w) {
			return Decision{Action: ActionDelete, Reason: "banned word: " + w}
		}
	}

	if e.cfg.BlockInviteLinks && inviteLinkRe.MatchString(msg.Text) {
		return Decision{Action: ActionDelete, Reason: "invite link"}
	}

	if reason, blocked := e.mediaBlocked(msg.Media); blocked {
		return Decision{Action: ActionDelete, Reason: reason}
	}

	if e.cfg.BlockLinks && genericURLRe.MatchString(msg.Text) {
		return Decision{Action: ActionDelete, Reason: "link"}
	}

	if e.cfg.BlockMentions && msg.HasMentions {
		return Decision{Action: ActionDelete, Reason: "mentions"}
	}

	return Decision{Action: ActionNone}
}

func (e *Engine) mediaBlocked(kind model.MediaKind) (string, bool) {
	blocked := false
	switch kind {
	case model.MediaImage:
		blocked = e.cfg.BlockImages
	case model.MediaVideo:
		blocked = e.cfg.BlockVideos
	case model.MediaAudio:
		blocked = e.cfg.BlockAudio
	case model.MediaDocument:
		blocked = e.cfg.BlockDocs
	}
	if !blocked {
		return "", false
	}
	return "blocked media: " + string(kind), true
}
