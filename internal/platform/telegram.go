package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pegazus-alpha/cent-bot/internal/model"
)

// Outbound sends that take longer than this are reported as failed without
// aborting the surrounding handler.
const defaultSendTimeout = 15 * time.Second

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram implements Messenger over the Telegram Bot API and translates
// long-poll updates into Events.
type Telegram struct {
	api         telegramAPI
	log         *slog.Logger
	selfID      int64
	sendTimeout time.Duration
	events      chan Event
}

// NewTelegram creates a Telegram adapter with the given bot token.
func NewTelegram(token string, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{
		api:         api,
		log:         log,
		selfID:      api.Self.ID,
		sendTimeout: defaultSendTimeout,
		events:      make(chan Event, 64),
	}, nil
}

// Events returns the inbound event stream. It is closed when Run returns.
func (t *Telegram) Events() <-chan Event {
	return t.events
}

// Run starts the long-polling loop, blocking until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "chat_member"}

	updates := t.api.GetUpdatesChan(u)
	defer close(t.events)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case upd := <-updates:
			ev := t.convert(upd)
			if ev == nil {
				continue
			}
			select {
			case t.events <- *ev:
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			}
		}
	}
}

// SendMessage sends a text message to a chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseID(chatID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := t.api.Send(msg)
		done <- err
	}()
	return t.await(ctx, done, "send message")
}

// DeleteMessage removes a message from a chat.
func (t *Telegram) DeleteMessage(ctx context.Context, ref MessageRef) error {
	chatID, err := parseID(ref.ChatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q", ref.MessageID)
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
		done <- err
	}()
	return t.await(ctx, done, "delete message")
}

// FetchRoster returns the group's privileged participants. Telegram does not
// enumerate plain members, so the roster is the admin set; that is enough
// for every authorization check the core performs.
func (t *Telegram) FetchRoster(ctx context.Context, groupID string) ([]Participant, error) {
	id, err := parseID(groupID)
	if err != nil {
		return nil, err
	}

	admins, err := t.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}

	roster := make([]Participant, 0, len(admins))
	for _, m := range admins {
		if m.User == nil {
			continue
		}
		role := RoleAdmin
		if m.Status == "creator" {
			role = RoleSuperAdmin
		}
		roster = append(roster, Participant{
			ID:   strconv.FormatInt(m.User.ID, 10),
			Name: displayName(m.User),
			Role: role,
		})
	}
	return roster, nil
}

// UpdateParticipant applies a membership operation to each listed user. All
// users are attempted; the first failure is reported after the loop.
func (t *Telegram) UpdateParticipant(ctx context.Context, groupID string, ids []string, op ParticipantOp) error {
	chatID, err := parseID(groupID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, raw := range ids {
		userID, err := parseID(raw)
		if err != nil {
			t.log.Warn("unresolvable participant", "id", raw, "op", string(op))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		member := tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}
		var cfg tgbotapi.Chattable
		switch op {
		case OpRemove:
			cfg = tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}
		case OpPromote:
			cfg = tgbotapi.PromoteChatMemberConfig{
				ChatMemberConfig:   member,
				CanDeleteMessages:  true,
				CanRestrictMembers: true,
				CanInviteUsers:     true,
				CanPinMessages:     true,
			}
		case OpDemote:
			cfg = tgbotapi.PromoteChatMemberConfig{ChatMemberConfig: member}
		default:
			return fmt.Errorf("unknown participant op %q", op)
		}

		done := make(chan error, 1)
		go func(c tgbotapi.Chattable) {
			_, err := t.api.Request(c)
			done <- err
		}(cfg)
		if err := t.await(ctx, done, string(op)+" participant"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// await bounds an in-flight API call by the send timeout. The call itself is
// not aborted; its result is discarded.
func (t *Telegram) await(ctx context.Context, done <-chan error, verb string) error {
	ctx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", verb, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", verb, ctx.Err())
	}
}

func (t *Telegram) convert(u tgbotapi.Update) *Event {
	if u.ChatMember != nil {
		return t.convertChatMember(u.ChatMember)
	}
	if u.Message == nil {
		return nil
	}
	msg := u.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if len(msg.NewChatMembers) > 0 {
		members := make([]Member, 0, len(msg.NewChatMembers))
		for i := range msg.NewChatMembers {
			members = append(members, t.toMember(&msg.NewChatMembers[i]))
		}
		return &Event{Member: &MemberEvent{
			GroupID:   chatID,
			GroupName: msg.Chat.Title,
			Action:    MemberAdd,
			Members:   members,
		}}
	}
	if msg.LeftChatMember != nil {
		return &Event{Member: &MemberEvent{
			GroupID:   chatID,
			GroupName: msg.Chat.Title,
			Action:    MemberRemove,
			Members:   []Member{t.toMember(msg.LeftChatMember)},
		}}
	}
	if msg.NewChatTitle != "" {
		return &Event{Group: &GroupUpdate{GroupID: chatID, Name: msg.NewChatTitle}}
	}
	if msg.From == nil {
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	return &Event{Message: &Message{
		Ref:        MessageRef{ChatID: chatID, MessageID: strconv.Itoa(msg.MessageID)},
		ChatID:     chatID,
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: displayName(msg.From),
		IsGroup:    msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
		GroupName:  msg.Chat.Title,
		Text:       text,
		Media:      mediaKind(msg),
		Mentions:   mentionIDs(msg),
	}}
}

func (t *Telegram) convertChatMember(cm *tgbotapi.ChatMemberUpdated) *Event {
	oldAdmin := isAdminStatus(cm.OldChatMember.Status)
	newAdmin := isAdminStatus(cm.NewChatMember.Status)

	var action MemberAction
	switch {
	case !oldAdmin && newAdmin:
		action = MemberPromote
	case oldAdmin && !newAdmin && isPresentStatus(cm.NewChatMember.Status):
		action = MemberDemote
	default:
		return nil
	}

	return &Event{Member: &MemberEvent{
		GroupID:   strconv.FormatInt(cm.Chat.ID, 10),
		GroupName: cm.Chat.Title,
		Action:    action,
		Members:   []Member{t.toMember(cm.NewChatMember.User)},
	}}
}

func isAdminStatus(status string) bool {
	return status == "administrator" || status == "creator"
}

func isPresentStatus(status string) bool {
	return status == "member" || status == "administrator" || status == "creator" || status == "restricted"
}

func mediaKind(msg *tgbotapi.Message) model.MediaKind {
	switch {
	case len(msg.Photo) > 0:
		return model.MediaImage
	case msg.Video != nil:
		return model.MediaVideo
	case msg.Audio != nil, msg.Voice != nil:
		return model.MediaAudio
	case msg.Document != nil:
		return model.MediaDocument
	default:
		return model.MediaNone
	}
}

// mentionIDs extracts mentioned users. Rich mentions resolve to user IDs;
// plain @username mentions stay textual since the Bot API cannot resolve
// them without an extra lookup. Entity offsets are UTF-16 code units, so the
// text is sliced in that encoding, never by byte.
func mentionIDs(msg *tgbotapi.Message) []string {
	var out []string
	var units []uint16
	for _, e := range msg.Entities {
		switch e.Type {
		case "text_mention":
			if e.User != nil {
				out = append(out, strconv.FormatInt(e.User.ID, 10))
			}
		case "mention":
			if units == nil {
				units = utf16.Encode([]rune(msg.Text))
			}
			if e.Offset >= 0 && e.Offset+e.Length <= len(units) {
				out = append(out, string(utf16.Decode(units[e.Offset:e.Offset+e.Length])))
			}
		}
	}
	return out
}

func (t *Telegram) toMember(u *tgbotapi.User) Member {
	if u == nil {
		return Member{}
	}
	return Member{
		ID:     strconv.FormatInt(u.ID, 10),
		Name:   displayName(u),
		IsSelf: u.ID == t.selfID,
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	name := u.FirstName
	if u.LastName != "" {
		name = strings.TrimSpace(name + " " + u.LastName)
	}
	return name
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat or user id %q", s)
	}
	return id, nil
}
