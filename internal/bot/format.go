package bot

import (
	"fmt"
	"strings"

	"github.com/pegazus-alpha/cent-bot/internal/model"
	"github.com/pegazus-alpha/cent-bot/internal/moderation"
)

// renderTemplate substitutes the @user and @group placeholders in a welcome
// or goodbye template.
func renderTemplate(tmpl, userName, groupName string) string {
	out := strings.ReplaceAll(tmpl, "@user", "@"+userName)
	return strings.ReplaceAll(out, "@group", groupName)
}

func formatModStatus(cfg moderation.Config) string {
	var b strings.Builder
	b.WriteString("Moderation status\n\n")
	fmt.Fprintf(&b, "images: %s\n", onOff(cfg.BlockImages))
	fmt.Fprintf(&b, "videos: %s\n", onOff(cfg.BlockVideos))
	fmt.Fprintf(&b, "audio: %s\n", onOff(cfg.BlockAudio))
	fmt.Fprintf(&b, "docs: %s\n", onOff(cfg.BlockDocs))
	fmt.Fprintf(&b, "links: %s\n", onOff(cfg.BlockLinks))
	fmt.Fprintf(&b, "invitelinks: %s\n", onOff(cfg.BlockInviteLinks))
	fmt.Fprintf(&b, "mentions: %s\n", onOff(cfg.BlockMentions))

	b.WriteString("\nAnti-flood: ")
	if cfg.AntiFlood.Enabled {
		fmt.Fprintf(&b, "%d messages per %s, action %s\n",
			cfg.AntiFlood.MessageLimit, cfg.AntiFlood.TimeFrame, cfg.AntiFlood.Action)
	} else {
		b.WriteString("disabled\n")
	}

	if len(cfg.BannedWords) == 0 {
		b.WriteString("\nNo banned words.")
	} else {
		fmt.Fprintf(&b, "\nBanned words (%d): %s", len(cfg.BannedWords), strings.Join(cfg.BannedWords, ", "))
	}
	return b.String()
}

func formatGroupList(groups []model.GroupSetting) string {
	if len(groups) == 0 {
		return "No groups configured yet. The bot registers a group the first time it sees a message there."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Configured groups (%d):\n\n", len(groups))
	for _, g := range groups {
		name := g.GroupName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "%s — %s\n  welcome %s, goodbye %s\n",
			name, g.GroupID, onOff(g.WelcomeEnabled), onOff(g.GoodbyeEnabled))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatGroupShow(g model.GroupSetting) string {
	name := g.GroupName
	if name == "" {
		name = "(unnamed)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Group %s — %s\n\n", name, g.GroupID)
	fmt.Fprintf(&b, "Welcome messages: %s\n", onOff(g.WelcomeEnabled))
	if strings.TrimSpace(g.WelcomeMessage) != "" {
		fmt.Fprintf(&b, "Welcome message:\n%s\n", g.WelcomeMessage)
	}
	fmt.Fprintf(&b, "\nGoodbye messages: %s\n", onOff(g.GoodbyeEnabled))
	if strings.TrimSpace(g.GoodbyeMessage) != "" {
		fmt.Fprintf(&b, "Goodbye message:\n%s\n", g.GoodbyeMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

const helpText = `Available commands:

In groups:
/tag all|admins — mention everyone seen in the group, or the admins
/addword <word> — ban a word (admins)
/delword <word> — unban a word (admins)
/kick @user — remove the mentioned users (admins)
/promote @user — promote the mentioned users (admins)
/demote @user — demote the mentioned users (admins)

Anywhere:
/setblock <type> on|off — block images, videos, audio, docs, links, invitelinks or mentions
/modstatus — show the moderation configuration

In a direct chat:
/welcome — configure welcome messages interactively
/grouphelp — group configuration commands`

const groupHelpText = `Group configuration (direct chat only):

/grouplist — list the configured groups
/groupset <group_id> enable|disable "<message>" — welcome messages
/goodbyeset <group_id> enable|disable "<message>" — goodbye messages
/groupedit <group_id> "<message>" — change the welcome message
/groupshow <group_id> — show a group's configuration
/groupdel <group_id> — delete a group's configuration

Placeholders @user and @group are replaced when a message is sent.`
