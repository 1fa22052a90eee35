// Package dialogue implements the interactive welcome-message configuration
// flow: a per-user state machine driven by free-text replies in a direct
// chat with the bot.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pegazus-alpha/cent-bot/internal/session"
	"github.com/pegazus-alpha/cent-bot/internal/settings"
)

// Entry, terminator and cancellation tokens. The French aliases survive from
// the first deployment.
const (
	cmdWelcome   = "/welcome"
	cmdWelcomeFr = "/bienvenue"
	cmdDone      = "/fin"
	cmdCancel    = "/cancel"
	cmdCancelFr  = "/annuler"
)

// Sender is the outbound message interface the controller needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Controller routes a user's replies through the dialogue state machine.
type Controller struct {
	sessions *session.Manager
	settings *settings.Store
	sender   Sender
	log      *slog.Logger
}

// New creates a Controller.
func New(sessions *session.Manager, store *settings.Store, sender Sender, log *slog.Logger) *Controller {
	return &Controller{
		sessions: sessions,
		settings: store,
		sender:   sender,
		log:      log,
	}
}

// HandleText offers one inbound direct-chat text to the dialogue. It returns
// false when the text is not part of a dialogue (no active session and not
// the entry command), in which case the caller falls through to ordinary
// command handling.
func (c *Controller) HandleText(ctx context.Context, userID, text string) bool {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if lower == cmdWelcome || lower == cmdWelcomeFr {
		c.begin(ctx, userID)
		return true
	}

	s, ok := c.sessions.Get(userID)
	if !ok {
		return false
	}

	if lower == cmdCancel || lower == cmdCancelFr {
		c.sessions.End(userID)
		c.send(ctx, userID, "Operation cancelled.")
		return true
	}

	switch s.Step {
	case session.StepSelectGroup:
		c.selectGroup(ctx, userID, s, trimmed)
	case session.StepSelectAction:
		c.selectAction(ctx, userID, s, trimmed)
	case session.StepEnterMessage:
		c.enterMessage(ctx, userID, s, trimmed, lower)
	}
	return true
}

// begin starts a fresh session and renders the numbered group list. The list
// is snapshotted into the session; a later selection indexes this snapshot
// even if the group registry has changed in the meantime.
func (c *Controller) begin(ctx context.Context, userID string) {
	groups := c.settings.List()
	if len(groups) == 0 {
		c.send(ctx, userID, "No groups found. Add the bot to a group before configuring welcome messages.")
		c.sessions.End(userID)
		return
	}

	s := c.sessions.Start(userID)
	s.Groups = make([]session.GroupChoice, 0, len(groups))
	for _, g := range groups {
		s.Groups = append(s.Groups, session.GroupChoice{
			ID:      g.GroupID,
			Name:    g.GroupName,
			Enabled: g.WelcomeEnabled,
		})
	}

	var b strings.Builder
	b.WriteString("Choose a group:\n\n")
	for i, g := range s.Groups {
		fmt.Fprintf(&b, "%d. %s — welcome messages %s\n", i+1, g.Name, onOff(g.Enabled))
	}
	b.WriteString("\nType the number of the group, or /cancel to quit.")
	c.send(ctx, userID, b.String())
}

func (c *Controller) selectGroup(ctx context.Context, userID string, s *session.Session, input string) {
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 1 || idx > len(s.Groups) {
		c.send(ctx, userID, "Invalid number. Type a number from the list, or /cancel to quit.")
		return
	}

	choice := s.Groups[idx-1]
	s.GroupID = choice.ID
	s.GroupName = choice.Name
	s.Step = session.StepSelectAction

	enabled := c.settings.IsWelcomeEnabled(choice.ID)
	toggleLabel := "Enable"
	if enabled {
		toggleLabel = "Disable"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Managing %q\n\nWelcome messages: %s\n\n", choice.Name, onOff(enabled))
	fmt.Fprintf(&b, "1. %s welcome messages\n", toggleLabel)
	b.WriteString("2. Edit the welcome message\n")
	b.WriteString("3. Show current settings\n")
	b.WriteString("\nType 1, 2 or 3, or /cancel to quit.")
	c.send(ctx, userID, b.String())
}

func (c *Controller) selectAction(ctx context.Context, userID string, s *session.Session, input string) {
	switch input {
	case "1":
		enabled, err := c.settings.ToggleWelcome(ctx, s.GroupID, s.GroupName)
		if err != nil {
			c.log.Error("toggle welcome", "group_id", s.GroupID, "error", err)
			c.send(ctx, userID, "Could not update the group settings. Please try again later.")
			c.sessions.End(userID)
			return
		}
		c.send(ctx, userID, fmt.Sprintf("Welcome messages %s for %q.", onOff(enabled), s.GroupName))
		c.sessions.End(userID)

	case "2":
		s.Step = session.StepEnterMessage
		s.Buffer = nil
		c.send(ctx, userID, fmt.Sprintf(
			"New welcome message for %q.\n\n"+
				"Type your message; every send adds a line. Placeholders @user and @group are replaced when the message is sent.\n"+
				"Type /fin when you are done, or /cancel to abandon.",
			s.GroupName))

	case "3":
		c.showSettings(ctx, userID, s.GroupID, s.GroupName)
		c.sessions.End(userID)

	default:
		c.send(ctx, userID, "Invalid number. Type 1, 2 or 3, or /cancel to quit.")
	}
}

// enterMessage accumulates lines until the terminator. Anything that is not
// exactly the terminator is message content, command-looking lines included.
func (c *Controller) enterMessage(ctx context.Context, userID string, s *session.Session, input, lower string) {
	if lower != cmdDone {
		s.AppendLine(input)
		c.send(ctx, userID, fmt.Sprintf(
			"Draft so far:\n%s\n\nKeep typing to add lines, /fin to save, /cancel to abandon.",
			s.ComposedMessage()))
		return
	}

	message := strings.TrimSpace(s.ComposedMessage())
	if message == "" {
		c.send(ctx, userID, "No message entered. Nothing was changed.")
		c.sessions.End(userID)
		return
	}

	if err := c.settings.SetWelcomeMessage(ctx, s.GroupID, s.GroupName, message); err != nil {
		c.log.Error("set welcome message", "group_id", s.GroupID, "error", err)
		c.send(ctx, userID, "Could not save the message. Please try again later.")
		c.sessions.End(userID)
		return
	}

	c.send(ctx, userID, fmt.Sprintf("Welcome message saved for %q:\n\n%s", s.GroupName, message))
	c.sessions.End(userID)
}

func (c *Controller) showSettings(ctx context.Context, userID, groupID, groupName string) {
	gs, _ := c.settings.Get(groupID)

	var b strings.Builder
	fmt.Fprintf(&b, "Settings for %q\n\nWelcome messages: %s\n", groupName, onOff(gs.WelcomeEnabled))
	if strings.TrimSpace(gs.WelcomeMessage) != "" {
		fmt.Fprintf(&b, "Current message:\n%s\n", gs.WelcomeMessage)
	} else {
		b.WriteString("No message configured.\n")
	}
	b.WriteString("\nUse /welcome to change these settings.")
	c.send(ctx, userID, b.String())
}

func (c *Controller) send(ctx context.Context, userID, text string) {
	if err := c.sender.SendMessage(ctx, userID, text); err != nil {
		c.log.Error("send dialogue message", "user_id", userID, "error", err)
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
