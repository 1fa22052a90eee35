package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pegazus-alpha/cent-bot/internal/platform"
)

// dispatch executes one parsed command. Authorization is re-checked at
// invocation time, never cached.
func (b *Bot) dispatch(ctx context.Context, msg *platform.Message, cmd command) {
	switch cmd.kind {
	case cmdTag:
		b.handleTag(ctx, msg, cmd.args)
	case cmdSetBlock:
		b.handleSetBlock(ctx, msg, cmd.args)
	case cmdAddWord:
		b.handleWordList(ctx, msg, cmd.args, true)
	case cmdDelWord:
		b.handleWordList(ctx, msg, cmd.args, false)
	case cmdModStatus:
		b.reply(ctx, msg.ChatID, formatModStatus(b.engine.Snapshot()))
	case cmdKick:
		b.handleMembership(ctx, msg, platform.OpRemove)
	case cmdPromote:
		b.handleMembership(ctx, msg, platform.OpPromote)
	case cmdDemote:
		b.handleMembership(ctx, msg, platform.OpDemote)
	case cmdGroupList:
		b.handleGroupList(ctx, msg)
	case cmdGroupSet:
		b.handleGroupToggle(ctx, msg, cmd.args, "groupset")
	case cmdGoodbyeSet:
		b.handleGroupToggle(ctx, msg, cmd.args, "goodbyeset")
	case cmdGroupEdit:
		b.handleGroupEdit(ctx, msg, cmd.args)
	case cmdGroupShow:
		b.handleGroupShow(ctx, msg, cmd.args)
	case cmdGroupDel:
		b.handleGroupDel(ctx, msg, cmd.args)
	case cmdGroupHelp:
		if !msg.IsGroup {
			b.reply(ctx, msg.ChatID, groupHelpText)
		}
	case cmdHelp:
		b.reply(ctx, msg.ChatID, helpText)
	}
}

func (b *Bot) handleTag(ctx context.Context, msg *platform.Message, args string) {
	if !msg.IsGroup {
		return
	}

	switch strings.ToLower(strings.TrimSpace(args)) {
	case "all":
		members, err := b.store.ListGroupMembers(ctx, msg.ChatID)
		if err != nil {
			b.log.Error("list group members", "group_id", msg.ChatID, "error", err)
			return
		}
		if len(members) == 0 {
			b.reply(ctx, msg.ChatID, "No members recorded for this group yet.")
			return
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, mention(m.Name, m.JID))
		}
		b.reply(ctx, msg.ChatID, "Attention everyone: "+strings.Join(names, " "))

	case "admins":
		roster, err := b.messenger.FetchRoster(ctx, msg.ChatID)
		if err != nil {
			b.log.Error("fetch roster", "group_id", msg.ChatID, "error", err)
			return
		}
		var names []string
		for _, p := range roster {
			if p.IsAdmin() {
				names = append(names, mention(p.Name, p.ID))
			}
		}
		if len(names) == 0 {
			return
		}
		b.reply(ctx, msg.ChatID, "Admins: "+strings.Join(names, " "))

	default:
		b.reply(ctx, msg.ChatID, "Usage: /tag all|admins")
	}
}

func (b *Bot) handleSetBlock(ctx context.Context, msg *platform.Message, args string) {
	cat, on, err := parseSetBlockArgs(args)
	if err != nil {
		b.reply(ctx, msg.ChatID, err.Error())
		return
	}

	if err := b.engine.SetBlock(cat, on); err != nil {
		b.reply(ctx, msg.ChatID, err.Error())
		return
	}

	state := "off"
	if on {
		state = "on"
	}
	b.log.Info("moderation config updated", "category", string(cat), "on", on, "by", msg.SenderID)
	b.reply(ctx, msg.ChatID, fmt.Sprintf("Blocking %s is now %s, in every group.", cat, state))
}

func (b *Bot) handleWordList(ctx context.Context, msg *platform.Message, args string, add bool) {
	if !msg.IsGroup {
		b.reply(ctx, msg.ChatID, "This command can only be used in a group.")
		return
	}
	if !b.isAdmin(ctx, msg.ChatID, msg.SenderID) {
		b.reply(ctx, msg.ChatID, "Only group admins can use this command.")
		return
	}

	word := strings.ToLower(strings.TrimSpace(args))
	if word == "" {
		usage := "/addword <word>"
		if !add {
			usage = "/delword <word>"
		}
		b.reply(ctx, msg.ChatID, "Usage: "+usage)
		return
	}

	if add {
		if b.engine.AddBannedWord(word) {
			b.reply(ctx, msg.ChatID, fmt.Sprintf("%q added to the banned words.", word))
		} else {
			b.reply(ctx, msg.ChatID, fmt.Sprintf("%q is already banned.", word))
		}
		return
	}
	if b.engine.RemoveBannedWord(word) {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("%q removed from the banned words.", word))
	} else {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("%q is not in the banned words.", word))
	}
}

func (b *Bot) handleMembership(ctx context.Context, msg *platform.Message, op platform.ParticipantOp) {
	if !msg.IsGroup {
		b.reply(ctx, msg.ChatID, "This command can only be used in a group.")
		return
	}
	if !b.isAdmin(ctx, msg.ChatID, msg.SenderID) {
		b.reply(ctx, msg.ChatID, "Only group admins can use this command.")
		return
	}
	if len(msg.Mentions) == 0 {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("Mention the users to %s. Usage: /%s @user1 @user2", opVerb(op), opVerb(op)))
		return
	}

	if err := b.messenger.UpdateParticipant(ctx, msg.ChatID, msg.Mentions, op); err != nil {
		b.log.Warn("update participant", "group_id", msg.ChatID, "op", string(op), "error", err)
		b.reply(ctx, msg.ChatID, "Something went wrong, not all users could be updated.")
		return
	}
	b.reply(ctx, msg.ChatID, fmt.Sprintf("%d user(s) %s.", len(msg.Mentions), opDone(op)))
}

func (b *Bot) handleGroupList(ctx context.Context, msg *platform.Message) {
	if msg.IsGroup {
		return
	}
	b.reply(ctx, msg.ChatID, formatGroupList(b.settings.List()))
}

func (b *Bot) handleGroupToggle(ctx context.Context, msg *platform.Message, args, name string) {
	if msg.IsGroup {
		return
	}

	parsed, err := parseGroupToggleArgs(name, args)
	if err != nil {
		b.reply(ctx, msg.ChatID, err.Error())
		return
	}

	groupName := ""
	if gs, ok := b.settings.Get(parsed.GroupID); ok {
		groupName = gs.GroupName
	}

	kind := "Welcome"
	if name == "goodbyeset" {
		kind = "Goodbye"
		err = b.settings.SetGoodbye(ctx, parsed.GroupID, groupName, parsed.Enable, parsed.Message)
	} else {
		err = b.settings.SetWelcome(ctx, parsed.GroupID, groupName, parsed.Enable, parsed.Message)
	}
	if err != nil {
		b.log.Error("configure group", "group_id", parsed.GroupID, "error", err)
		b.reply(ctx, msg.ChatID, "Could not save the group configuration.")
		return
	}

	if parsed.Enable {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("%s messages enabled for %s.\n\nMessage:\n%s", kind, parsed.GroupID, parsed.Message))
	} else {
		b.reply(ctx, msg.ChatID, fmt.Sprintf("%s messages disabled for %s.", kind, parsed.GroupID))
	}
}

func (b *Bot) handleGroupEdit(ctx context.Context, msg *platform.Message, args string) {
	if msg.IsGroup {
		return
	}

	groupID, message, err := parseGroupEditArgs(args)
	if err != nil {
		b.reply(ctx, msg.ChatID, err.Error())
		return
	}

	gs, ok := b.settings.Get(groupID)
	if !ok {
		b.reply(ctx, msg.ChatID, "Group not configured. Use /grouplist to see the configured groups.")
		return
	}

	if err := b.settings.SetWelcomeMessage(ctx, groupID, gs.GroupName, message); err != nil {
		b.log.Error("edit welcome message", "group_id", groupID, "error", err)
		b.reply(ctx, msg.ChatID, "Could not save the message.")
		return
	}
	b.reply(ctx, msg.ChatID, "Welcome message updated.\n\nNew message:\n"+message)
}

func (b *Bot) handleGroupShow(ctx context.Context, msg *platform.Message, args string) {
	if msg.IsGroup {
		return
	}

	groupID, err := parseGroupIDArg(args)
	if err != nil {
		b.reply(ctx, msg.ChatID, "Usage: /groupshow <group_id>")
		return
	}

	gs, ok := b.settings.Get(groupID)
	if !ok {
		b.reply(ctx, msg.ChatID, "Group not configured.")
		return
	}
	b.reply(ctx, msg.ChatID, formatGroupShow(gs))
}

func (b *Bot) handleGroupDel(ctx context.Context, msg *platform.Message, args string) {
	if msg.IsGroup {
		return
	}

	groupID, err := parseGroupIDArg(args)
	if err != nil {
		b.reply(ctx, msg.ChatID, "Usage: /groupdel <group_id>")
		return
	}

	existed, err := b.settings.Delete(ctx, groupID)
	if err != nil {
		b.log.Error("delete group settings", "group_id", groupID, "error", err)
		b.reply(ctx, msg.ChatID, "Could not delete the group configuration.")
		return
	}
	if !existed {
		b.reply(ctx, msg.ChatID, "Group not found.")
		return
	}
	b.reply(ctx, msg.ChatID, "Configuration deleted for group "+groupID+".")
}

func opVerb(op platform.ParticipantOp) string {
	switch op {
	case platform.OpPromote:
		return "promote"
	case platform.OpDemote:
		return "demote"
	default:
		return "kick"
	}
}

func opDone(op platform.ParticipantOp) string {
	switch op {
	case platform.OpPromote:
		return "promoted to admin"
	case platform.OpDemote:
		return "demoted"
	default:
		return "removed"
	}
}

func mention(name, id string) string {
	if name != "" {
		return "@" + name
	}
	return "@" + id
}
