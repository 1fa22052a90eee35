package bot

import (
	"fmt"
	"strings"

	"github.com/pegazus-alpha/cent-bot/internal/moderation"
)

// commandKind enumerates the bot's text commands. Commands are parsed once
// into a command value and matched exhaustively by the dispatcher.
type commandKind int

const (
	cmdTag commandKind = iota
	cmdSetBlock
	cmdAddWord
	cmdDelWord
	cmdModStatus
	cmdKick
	cmdPromote
	cmdDemote
	cmdGroupList
	cmdGroupSet
	cmdGoodbyeSet
	cmdGroupEdit
	cmdGroupShow
	cmdGroupDel
	cmdGroupHelp
	cmdHelp
)

// command is one parsed command invocation.
type command struct {
	kind commandKind
	args string
}

// parseCommand parses a leading /name or !name token, case-insensitively.
// Texts that are not commands, and unknown commands, report ok == false and
// are silently ignored by the caller to avoid noise on ordinary chat.
func parseCommand(text string) (command, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || (trimmed[0] != '/' && trimmed[0] != '!') {
		return command{}, false
	}

	head, rest, _ := strings.Cut(trimmed[1:], " ")
	var kind commandKind
	switch strings.ToLower(head) {
	case "tag":
		kind = cmdTag
	case "setblock":
		kind = cmdSetBlock
	case "addword":
		kind = cmdAddWord
	case "delword":
		kind = cmdDelWord
	case "modstatus":
		kind = cmdModStatus
	case "kick":
		kind = cmdKick
	case "promote":
		kind = cmdPromote
	case "demote":
		kind = cmdDemote
	case "grouplist":
		kind = cmdGroupList
	case "groupset":
		kind = cmdGroupSet
	case "goodbyeset":
		kind = cmdGoodbyeSet
	case "groupedit":
		kind = cmdGroupEdit
	case "groupshow":
		kind = cmdGroupShow
	case "groupdel":
		kind = cmdGroupDel
	case "grouphelp":
		kind = cmdGroupHelp
	case "help":
		kind = cmdHelp
	default:
		return command{}, false
	}

	return command{kind: kind, args: strings.TrimSpace(rest)}, true
}

// parseSetBlockArgs parses "<type> on|off" for /setblock.
func parseSetBlockArgs(args string) (moderation.Category, bool, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return "", false, fmt.Errorf("usage: /setblock <type> on|off\nTypes: images, videos, audio, docs, links, invitelinks, mentions")
	}

	cat := moderation.Category(strings.ToLower(parts[0]))
	switch cat {
	case moderation.CategoryImages, moderation.CategoryVideos, moderation.CategoryAudio,
		moderation.CategoryDocs, moderation.CategoryLinks, moderation.CategoryInviteLinks,
		moderation.CategoryMentions:
	default:
		return "", false, fmt.Errorf("unknown block type %q", parts[0])
	}

	switch strings.ToLower(parts[1]) {
	case "on", "1", "true":
		return cat, true, nil
	case "off", "0", "false":
		return cat, false, nil
	default:
		return "", false, fmt.Errorf("invalid value %q, use on or off", parts[1])
	}
}

// groupToggleArgs holds the parsed arguments of /groupset and /goodbyeset.
type groupToggleArgs struct {
	GroupID string
	Enable  bool
	Message string
}

// parseGroupToggleArgs parses `<id> enable|disable "<msg>"`. The message is
// required for enable and ignored for disable.
func parseGroupToggleArgs(name, args string) (groupToggleArgs, error) {
	usage := fmt.Errorf("usage: /%s <group_id> enable|disable \"<message>\"", name)

	parts := strings.SplitN(strings.TrimSpace(args), " ", 3)
	if len(parts) < 2 {
		return groupToggleArgs{}, usage
	}

	out := groupToggleArgs{GroupID: parts[0]}
	switch strings.ToLower(parts[1]) {
	case "enable":
		out.Enable = true
	case "disable":
	default:
		return groupToggleArgs{}, usage
	}

	if len(parts) == 3 {
		out.Message = stripQuotes(parts[2])
	}
	if out.Enable && out.Message == "" {
		return groupToggleArgs{}, fmt.Errorf("a message is required when enabling, e.g. /%s <group_id> enable \"Welcome!\"", name)
	}
	return out, nil
}

// parseGroupEditArgs parses `<id> "<msg>"` for /groupedit.
func parseGroupEditArgs(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("usage: /groupedit <group_id> \"<message>\"")
	}
	return parts[0], stripQuotes(parts[1]), nil
}

// parseGroupIDArg extracts a group ID from a command argument string.
func parseGroupIDArg(args string) (string, error) {
	id := strings.TrimSpace(args)
	if id == "" {
		return "", fmt.Errorf("group ID is required")
	}
	return strings.Fields(id)[0], nil
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, "“”")
	return strings.TrimSpace(s)
}
