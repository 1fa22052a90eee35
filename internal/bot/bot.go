// Package bot wires the moderation engine, the interactive dialogue and the
// command dispatcher behind a single inbound event loop.
package bot

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/pegazus-alpha/cent-bot/internal/config"
	"github.com/pegazus-alpha/cent-bot/internal/dialogue"
	"github.com/pegazus-alpha/cent-bot/internal/model"
	"github.com/pegazus-alpha/cent-bot/internal/moderation"
	"github.com/pegazus-alpha/cent-bot/internal/platform"
	"github.com/pegazus-alpha/cent-bot/internal/session"
	"github.com/pegazus-alpha/cent-bot/internal/settings"
	"github.com/pegazus-alpha/cent-bot/internal/storage"
)

// Bot routes inbound platform events to the moderation engine, the dialogue
// controller and the command dispatcher, in that fixed order.
type Bot struct {
	messenger platform.Messenger
	store     storage.Storage
	settings  *settings.Store
	sessions  *session.Manager
	dialogue  *dialogue.Controller
	engine    *moderation.Engine
	cfg       *config.Config
	log       *slog.Logger
}

// New creates a Bot over the given collaborators.
func New(
	messenger platform.Messenger,
	store storage.Storage,
	settingsStore *settings.Store,
	sessions *session.Manager,
	engine *moderation.Engine,
	cfg *config.Config,
	log *slog.Logger,
) *Bot {
	return &Bot{
		messenger: messenger,
		store:     store,
		settings:  settingsStore,
		sessions:  sessions,
		dialogue:  dialogue.New(sessions, settingsStore, messenger, log),
		engine:    engine,
		cfg:       cfg,
		log:       log,
	}
}

// Run consumes platform events until ctx is cancelled or the stream closes.
// Handlers run to completion before the next event is taken, which is the
// only ordering guarantee the in-memory state relies on.
func (b *Bot) Run(ctx context.Context, events <-chan platform.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch {
			case ev.Message != nil:
				b.handleMessage(ctx, ev.Message)
			case ev.Member != nil:
				b.handleMemberEvent(ctx, ev.Member)
			case ev.Group != nil:
				b.handleGroupUpdate(ctx, ev.Group)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *platform.Message) {
	b.recordMessage(ctx, msg)

	if msg.IsGroup {
		if err := b.settings.Register(ctx, msg.ChatID, msg.GroupName); err != nil {
			b.log.Error("register group", "group_id", msg.ChatID, "error", err)
		}
		if b.moderate(ctx, msg) {
			return
		}
	} else if b.dialogue.HandleText(ctx, msg.ChatID, msg.Text) {
		return
	}

	cmd, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	b.dispatch(ctx, msg, cmd)
}

// moderate evaluates the message and executes the decided action. It reports
// whether the message was consumed by moderation; a failed deletion leaves
// the message in place and lets processing continue.
func (b *Bot) moderate(ctx context.Context, msg *platform.Message) bool {
	isAdmin := b.isAdmin(ctx, msg.ChatID, msg.SenderID)
	decision := b.engine.Evaluate(msg.ChatID, msg.SenderID, moderation.Message{
		Text:        msg.Text,
		Media:       msg.Media,
		HasMentions: len(msg.Mentions) > 0,
	}, isAdmin)

	switch decision.Action {
	case moderation.ActionDelete:
		if err := b.messenger.DeleteMessage(ctx, msg.Ref); err != nil {
			b.log.Warn("delete message", "chat_id", msg.ChatID, "reason", decision.Reason, "error", err)
			return false
		}
		b.logModeration(ctx, msg.SenderID, decision)
		return true

	case moderation.ActionWarn:
		b.reply(ctx, msg.SenderID, "You are sending messages too quickly. Please slow down.")
		b.logModeration(ctx, msg.SenderID, decision)
		return true

	case moderation.ActionKick:
		b.reply(ctx, msg.ChatID, msg.SenderName+" was removed for flooding.")
		if err := b.messenger.UpdateParticipant(ctx, msg.ChatID, []string{msg.SenderID}, platform.OpRemove); err != nil {
			b.log.Warn("flood kick", "chat_id", msg.ChatID, "sender", msg.SenderID, "error", err)
		}
		b.logModeration(ctx, msg.SenderID, decision)
		return true

	default:
		return false
	}
}

func (b *Bot) handleMemberEvent(ctx context.Context, ev *platform.MemberEvent) {
	// The bot being removed ends the group's lifecycle: drop its settings and
	// send nothing.
	if ev.Action == platform.MemberRemove {
		for _, m := range ev.Members {
			if m.IsSelf {
				b.log.Info("removed from group", "group_id", ev.GroupID)
				if _, err := b.settings.Delete(ctx, ev.GroupID); err != nil {
					b.log.Error("delete group settings", "group_id", ev.GroupID, "error", err)
				}
				return
			}
		}
	}

	if err := b.settings.Register(ctx, ev.GroupID, ev.GroupName); err != nil {
		b.log.Error("register group", "group_id", ev.GroupID, "error", err)
	}

	switch ev.Action {
	case platform.MemberAdd:
		b.greet(ctx, ev, true)
	case platform.MemberRemove:
		b.greet(ctx, ev, false)
	case platform.MemberPromote:
		for _, m := range ev.Members {
			b.reply(ctx, ev.GroupID, "Congratulations @"+m.Name+", you are now an admin.")
		}
	case platform.MemberDemote:
		for _, m := range ev.Members {
			b.reply(ctx, ev.GroupID, "@"+m.Name+" is no longer an admin.")
		}
	}
}

// greet sends the welcome or goodbye message for each affected participant.
// A send failure skips that participant only.
func (b *Bot) greet(ctx context.Context, ev *platform.MemberEvent, joining bool) {
	var tmpl string
	var ok bool
	if joining {
		tmpl, ok = b.settings.WelcomeMessage(ev.GroupID)
	} else {
		tmpl, ok = b.settings.GoodbyeMessage(ev.GroupID)
	}
	if !ok || tmpl == "" {
		return
	}

	groupName := ev.GroupName
	if gs, found := b.settings.Get(ev.GroupID); found && gs.GroupName != "" {
		groupName = gs.GroupName
	}

	for _, m := range ev.Members {
		if joining {
			u := model.User{JID: m.ID, Name: m.Name, Role: "member"}
			if err := b.store.UpsertUser(ctx, &u); err != nil {
				b.log.Error("save user", "jid", m.ID, "error", err)
			}
		}

		text := renderTemplate(tmpl, m.Name, groupName)
		if err := b.messenger.SendMessage(ctx, ev.GroupID, text); err != nil {
			b.log.Warn("send greeting", "group_id", ev.GroupID, "member", m.ID, "error", err)
		}
	}
}

func (b *Bot) handleGroupUpdate(ctx context.Context, ev *platform.GroupUpdate) {
	if err := b.settings.Register(ctx, ev.GroupID, ev.Name); err != nil {
		b.log.Error("register group", "group_id", ev.GroupID, "error", err)
	}
}

// recordMessage persists the sender and the message, best-effort.
func (b *Bot) recordMessage(ctx context.Context, msg *platform.Message) {
	u := model.User{JID: msg.SenderID, Name: msg.SenderName, Role: "member"}
	if err := b.store.UpsertUser(ctx, &u); err != nil {
		b.log.Error("save user", "jid", msg.SenderID, "error", err)
	}

	groupID := ""
	if msg.IsGroup {
		groupID = msg.ChatID
	}
	m := model.Message{
		ID:      msg.Ref.ChatID + ":" + msg.Ref.MessageID,
		JID:     msg.SenderID,
		GroupID: groupID,
		Body:    truncate(msg.Text, 500),
		Media:   msg.Media,
	}
	if err := b.store.SaveMessage(ctx, &m); err != nil {
		b.log.Error("save message", "id", m.ID, "error", err)
	}
}

// isAdmin re-checks the invoker's role against the live roster. Super admins
// from the config pass everywhere; a roster fetch failure denies.
func (b *Bot) isAdmin(ctx context.Context, groupID, userID string) bool {
	if b.cfg.IsSuperAdmin(userID) {
		return true
	}
	roster, err := b.messenger.FetchRoster(ctx, groupID)
	if err != nil {
		b.log.Warn("fetch roster", "group_id", groupID, "error", err)
		return false
	}
	for _, p := range roster {
		if p.ID == userID && p.IsAdmin() {
			return true
		}
	}
	return false
}

func (b *Bot) logModeration(ctx context.Context, jid string, d moderation.Decision) {
	entry := model.ModerationLog{JID: jid, Action: d.Action.String(), Reason: d.Reason}
	if err := b.store.AppendModerationLog(ctx, &entry); err != nil {
		b.log.Error("append moderation log", "jid", jid, "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID, text string) {
	if err := b.messenger.SendMessage(ctx, chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so the
// result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
