package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pegazus-alpha/cent-bot/internal/config"
	"github.com/pegazus-alpha/cent-bot/internal/model"
	"github.com/pegazus-alpha/cent-bot/internal/moderation"
	"github.com/pegazus-alpha/cent-bot/internal/platform"
	"github.com/pegazus-alpha/cent-bot/internal/session"
	"github.com/pegazus-alpha/cent-bot/internal/settings"
	"github.com/pegazus-alpha/cent-bot/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID string
	Text   string
}

type participantCall struct {
	GroupID string
	IDs     []string
	Op      platform.ParticipantOp
}

type mockMessenger struct {
	mu      sync.Mutex
	sent    []sentMsg
	deleted []platform.MessageRef
	updates []participantCall

	roster    []platform.Participant
	rosterErr error
	deleteErr error
	updateErr error
}

func (m *mockMessenger) SendMessage(_ context.Context, chatID, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMsg{ChatID: chatID, Text: text})
	m.mu.Unlock()
	return nil
}

func (m *mockMessenger) DeleteMessage(_ context.Context, ref platform.MessageRef) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, ref)
	m.mu.Unlock()
	return nil
}

func (m *mockMessenger) FetchRoster(_ context.Context, _ string) ([]platform.Participant, error) {
	if m.rosterErr != nil {
		return nil, m.rosterErr
	}
	return m.roster, nil
}

func (m *mockMessenger) UpdateParticipant(_ context.Context, groupID string, ids []string, op platform.ParticipantOp) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	m.updates = append(m.updates, participantCall{GroupID: groupID, IDs: ids, Op: op})
	m.mu.Unlock()
	return nil
}

func (m *mockMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockMessenger) lastSent() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

// --- helpers ---

func newTestBot(t *testing.T) (*Bot, *mockMessenger, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	settingsStore, err := settings.New(context.Background(), store, log)
	if err != nil {
		t.Fatalf("new settings store: %v", err)
	}

	modCfg := moderation.DefaultConfig()
	modCfg.AntiFlood.Enabled = false
	modCfg.BannedWords = []string{"badword"}

	messenger := &mockMessenger{}
	cfg := &config.Config{SuperAdmins: []string{"900"}}
	b := New(messenger, store, settingsStore, session.NewManager(log), moderation.New(modCfg, log), cfg, log)
	return b, messenger, store
}

func groupMsg(senderID, text string) *platform.Message {
	return &platform.Message{
		Ref:        platform.MessageRef{ChatID: "-100", MessageID: "1"},
		ChatID:     "-100",
		SenderID:   senderID,
		SenderName: "sender",
		IsGroup:    true,
		GroupName:  "Test Group",
		Text:       text,
	}
}

func directMsg(senderID, text string) *platform.Message {
	return &platform.Message{
		Ref:      platform.MessageRef{ChatID: senderID, MessageID: "1"},
		ChatID:   senderID,
		SenderID: senderID,
		Text:     text,
	}
}

func adminRoster(ids ...string) []platform.Participant {
	out := make([]platform.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, platform.Participant{ID: id, Name: "admin" + id, Role: platform.RoleAdmin})
	}
	return out
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- moderation routing ---

func TestModerationDeletesBannedWord(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "this has a badword in it"))

	if len(messenger.deleted) != 1 {
		t.Fatalf("expected 1 deletion, got %d", len(messenger.deleted))
	}
	if messenger.deleted[0].ChatID != "-100" {
		t.Errorf("deleted in wrong chat: %+v", messenger.deleted[0])
	}
}

func TestModerationSkipsAdmins(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.roster = adminRoster("42")
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "this has a badword in it"))

	if len(messenger.deleted) != 0 {
		t.Errorf("admin message deleted: %+v", messenger.deleted)
	}
}

func TestModerationSkipsSuperAdmins(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("900", "this has a badword in it"))

	if len(messenger.deleted) != 0 {
		t.Errorf("super admin message deleted: %+v", messenger.deleted)
	}
}

func TestModerationShortCircuitsCommands(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	// A command that also trips a content rule is deleted, not executed.
	b.handleMessage(ctx, groupMsg("42", "/help badword"))

	if len(messenger.deleted) != 1 {
		t.Fatalf("expected deletion, got %d", len(messenger.deleted))
	}
	if len(messenger.sent) != 0 {
		t.Errorf("command executed after moderation: %v", messenger.sent)
	}
}

func TestModerationDeleteFailureContinues(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.deleteErr = errors.New("message too old")
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "/help badword"))

	// The deletion failed, so the command still runs.
	requireContains(t, messenger.lastText(), "Available commands")
}

func TestModerationWritesAuditLog(t *testing.T) {
	b, _, store := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "badword"))

	entry := model.ModerationLog{JID: "42", Action: "probe", Reason: "probe"}
	if err := store.AppendModerationLog(ctx, &entry); err != nil {
		t.Fatalf("append probe entry: %v", err)
	}
	// The probe row is ID 2: one audit entry was written for the deletion.
	if entry.ID != 2 {
		t.Errorf("expected exactly one prior audit entry, probe got ID %d", entry.ID)
	}
}

func TestFloodWarnGoesToSender(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	b.engine.SetFlood(moderation.FloodConfig{Enabled: true, MessageLimit: 1, TimeFrame: time.Minute, Action: moderation.FloodWarn})
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "one"))
	b.handleMessage(ctx, groupMsg("42", "two"))

	last := messenger.lastSent()
	if last.ChatID != "42" {
		t.Errorf("warning sent to %q, want the sender's direct chat", last.ChatID)
	}
	requireContains(t, last.Text, "slow down")
}

func TestFloodKickRemovesSender(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	b.engine.SetFlood(moderation.FloodConfig{Enabled: true, MessageLimit: 1, TimeFrame: time.Minute, Action: moderation.FloodKick})
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "one"))
	b.handleMessage(ctx, groupMsg("42", "two"))

	if len(messenger.updates) != 1 {
		t.Fatalf("expected 1 participant update, got %d", len(messenger.updates))
	}
	call := messenger.updates[0]
	if call.Op != platform.OpRemove || call.IDs[0] != "42" || call.GroupID != "-100" {
		t.Errorf("unexpected kick call: %+v", call)
	}
	requireContains(t, messenger.lastText(), "removed for flooding")
}

// --- command authorization ---

func TestAddWordRequiresGroup(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	b.handleMessage(context.Background(), directMsg("42", "/addword slur"))
	requireContains(t, messenger.lastText(), "only be used in a group")
}

func TestAddWordRequiresAdmin(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "/addword slur"))
	requireContains(t, messenger.lastText(), "Only group admins")

	messenger.roster = adminRoster("42")
	b.handleMessage(ctx, groupMsg("42", "/addword slur"))
	requireContains(t, messenger.lastText(), "added to the banned words")
}

func TestAddWordRosterFailureDenies(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.rosterErr = errors.New("network down")

	b.handleMessage(context.Background(), groupMsg("42", "/addword slur"))
	requireContains(t, messenger.lastText(), "Only group admins")
}

func TestSuperAdminBypassesRoster(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.rosterErr = errors.New("network down")

	b.handleMessage(context.Background(), groupMsg("900", "/addword slur"))
	requireContains(t, messenger.lastText(), "added to the banned words")
}

func TestKickRequiresMentions(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.roster = adminRoster("42")
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "/kick"))
	requireContains(t, messenger.lastText(), "Mention the users")

	msg := groupMsg("42", "/kick @troll")
	msg.Mentions = []string{"777"}
	b.handleMessage(ctx, msg)

	if len(messenger.updates) != 1 {
		t.Fatalf("expected 1 participant update, got %d", len(messenger.updates))
	}
	call := messenger.updates[0]
	if call.Op != platform.OpRemove || call.IDs[0] != "777" {
		t.Errorf("unexpected kick call: %+v", call)
	}
	requireContains(t, messenger.lastText(), "removed")
}

func TestPromoteAndDemote(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.roster = adminRoster("42")
	ctx := context.Background()

	msg := groupMsg("42", "/promote @user")
	msg.Mentions = []string{"777"}
	b.handleMessage(ctx, msg)

	msg = groupMsg("42", "/demote @user")
	msg.Mentions = []string{"777"}
	b.handleMessage(ctx, msg)

	if len(messenger.updates) != 2 {
		t.Fatalf("expected 2 participant updates, got %d", len(messenger.updates))
	}
	if messenger.updates[0].Op != platform.OpPromote || messenger.updates[1].Op != platform.OpDemote {
		t.Errorf("unexpected ops: %+v", messenger.updates)
	}
}

func TestSetBlockAppliesGlobally(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", "/setblock links on"))
	requireContains(t, messenger.lastText(), "Blocking links is now on")

	b.handleMessage(ctx, groupMsg("7", "see https://example.com"))
	if len(messenger.deleted) != 1 {
		t.Errorf("link not deleted after /setblock, deletions: %d", len(messenger.deleted))
	}
}

func TestModStatus(t *testing.T) {
	b, messenger, _ := newTestBot(t)

	b.handleMessage(context.Background(), directMsg("42", "/modstatus"))
	requireContains(t, messenger.lastText(), "invitelinks: on")
	requireContains(t, messenger.lastText(), "Banned words (1): badword")
}

// --- tagging ---

func TestTagAll(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	// Members are whoever has been observed posting in the group.
	alice := groupMsg("1", "hi")
	alice.SenderName = "alice"
	b.handleMessage(ctx, alice)

	bob := groupMsg("2", "hello")
	bob.Ref.MessageID = "2"
	bob.SenderName = "bob"
	b.handleMessage(ctx, bob)

	b.handleMessage(ctx, groupMsg("1", "/tag all"))
	requireContains(t, messenger.lastText(), "@alice")
	requireContains(t, messenger.lastText(), "@bob")
}

func TestTagAdmins(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	messenger.roster = adminRoster("1", "2")

	b.handleMessage(context.Background(), groupMsg("42", "/tag admins"))
	requireContains(t, messenger.lastText(), "@admin1")
	requireContains(t, messenger.lastText(), "@admin2")
}

func TestTagIgnoredInDirectChat(t *testing.T) {
	b, messenger, _ := newTestBot(t)

	b.handleMessage(context.Background(), directMsg("42", "/tag all"))
	if len(messenger.sent) != 0 {
		t.Errorf("unexpected reply: %v", messenger.sent)
	}
}

// --- group configuration ---

func TestGroupSetEnable(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", `/groupset -100 enable "Welcome @user to @group!"`))
	requireContains(t, messenger.lastText(), "Welcome messages enabled")

	if msg, ok := b.settings.WelcomeMessage("-100"); !ok || msg != "Welcome @user to @group!" {
		t.Errorf("welcome message = (%q, %v)", msg, ok)
	}
}

func TestGoodbyeSetEnable(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", `/goodbyeset -100 enable "Bye @user"`))
	requireContains(t, messenger.lastText(), "Goodbye messages enabled")

	if msg, ok := b.settings.GoodbyeMessage("-100"); !ok || msg != "Bye @user" {
		t.Errorf("goodbye message = (%q, %v)", msg, ok)
	}
}

func TestGroupSetIgnoredInGroup(t *testing.T) {
	b, messenger, _ := newTestBot(t)

	b.handleMessage(context.Background(), groupMsg("42", `/groupset -100 enable "hi"`))
	if len(messenger.sent) != 0 {
		t.Errorf("group management replied inside a group: %v", messenger.sent)
	}
}

func TestGroupEditRequiresExistingGroup(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", `/groupedit -100 "new"`))
	requireContains(t, messenger.lastText(), "Group not configured")

	b.handleMessage(ctx, directMsg("42", `/groupset -100 enable "old"`))
	b.handleMessage(ctx, directMsg("42", `/groupedit -100 "new"`))
	requireContains(t, messenger.lastText(), "Welcome message updated")

	if msg, _ := b.settings.WelcomeMessage("-100"); msg != "new" {
		t.Errorf("message not updated: %q", msg)
	}
}

func TestGroupShowAndDel(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", `/groupset -100 enable "Hello"`))
	b.handleMessage(ctx, directMsg("42", "/groupshow -100"))
	requireContains(t, messenger.lastText(), "Welcome messages: on")
	requireContains(t, messenger.lastText(), "Hello")

	b.handleMessage(ctx, directMsg("42", "/groupdel -100"))
	requireContains(t, messenger.lastText(), "Configuration deleted")

	b.handleMessage(ctx, directMsg("42", "/groupdel -100"))
	requireContains(t, messenger.lastText(), "Group not found")
}

func TestGroupList(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, directMsg("42", "/grouplist"))
	requireContains(t, messenger.lastText(), "No groups configured")

	b.handleMessage(ctx, groupMsg("7", "hello"))
	b.handleMessage(ctx, directMsg("42", "/grouplist"))
	requireContains(t, messenger.lastText(), "Test Group")
}

// --- dialogue precedence ---

func TestDialogueConsumesDirectChat(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	// Seeing a group message registers the group for the dialogue list.
	b.handleMessage(ctx, groupMsg("7", "hello"))

	b.handleMessage(ctx, directMsg("42", "/welcome"))
	requireContains(t, messenger.lastText(), "Choose a group")

	// Mid-dialogue, a command-looking reply belongs to the dialogue.
	b.handleMessage(ctx, directMsg("42", "1"))
	requireContains(t, messenger.lastText(), "Managing")
}

func TestDialogueOutranksDispatcherWhileComposing(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("7", "hello"))

	// Walk into the composition step.
	b.handleMessage(ctx, directMsg("42", "/welcome"))
	b.handleMessage(ctx, directMsg("42", "1"))
	b.handleMessage(ctx, directMsg("42", "2"))

	b.handleMessage(ctx, directMsg("42", "/setblock links on"))

	// The line went to the draft, not to the dispatcher: the engine config
	// is unchanged and the reply is the draft echo, not a /setblock ack.
	if b.engine.Snapshot().BlockLinks {
		t.Error("/setblock executed while a dialogue was composing")
	}
	requireContains(t, messenger.lastText(), "Draft so far")

	b.handleMessage(ctx, directMsg("42", "/fin"))
	gs, ok := b.settings.Get("-100")
	if !ok || gs.WelcomeMessage != "/setblock links on" {
		t.Errorf("stored template = %q, want the buffered command line", gs.WelcomeMessage)
	}
}

func TestDialogueNotOfferedInGroups(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, groupMsg("42", "/welcome"))
	if len(messenger.sent) != 0 {
		t.Errorf("dialogue started from a group chat: %v", messenger.sent)
	}
}

// --- member events ---

func TestWelcomeOnJoin(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.settings.SetWelcome(ctx, "-100", "Test Group", true, "Welcome @user to @group!"); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	b.handleMemberEvent(ctx, &platform.MemberEvent{
		GroupID:   "-100",
		GroupName: "Test Group",
		Action:    platform.MemberAdd,
		Members:   []platform.Member{{ID: "1", Name: "alice"}, {ID: "2", Name: "bob"}},
	})

	if len(messenger.sent) != 2 {
		t.Fatalf("expected 2 greetings, got %d", len(messenger.sent))
	}
	requireContains(t, messenger.sent[0].Text, "Welcome @alice to Test Group!")
	requireContains(t, messenger.sent[1].Text, "Welcome @bob to Test Group!")
}

func TestNoWelcomeWhenDisabled(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.settings.SetWelcome(ctx, "-100", "Test Group", false, "stored but disabled"); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	b.handleMemberEvent(ctx, &platform.MemberEvent{
		GroupID: "-100",
		Action:  platform.MemberAdd,
		Members: []platform.Member{{ID: "1", Name: "alice"}},
	})

	if len(messenger.sent) != 0 {
		t.Errorf("greeting sent for disabled group: %v", messenger.sent)
	}
}

func TestGoodbyeOnLeave(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.settings.SetGoodbye(ctx, "-100", "Test Group", true, "Goodbye @user."); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	b.handleMemberEvent(ctx, &platform.MemberEvent{
		GroupID: "-100",
		Action:  platform.MemberRemove,
		Members: []platform.Member{{ID: "1", Name: "alice"}},
	})

	requireContains(t, messenger.lastText(), "Goodbye @alice.")
}

func TestBotRemovalDeletesSettings(t *testing.T) {
	b, messenger, _ := newTestBot(t)
	ctx := context.Background()

	if err := b.settings.SetGoodbye(ctx, "-100", "Test Group", true, "Bye @user."); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	b.handleMemberEvent(ctx, &platform.MemberEvent{
		GroupID: "-100",
		Action:  platform.MemberRemove,
		Members: []platform.Member{{ID: "555", Name: "centbot", IsSelf: true}},
	})

	if _, ok := b.settings.Get("-100"); ok {
		t.Error("settings survived the bot's removal")
	}
	if len(messenger.sent) != 0 {
		t.Errorf("goodbye sent for the bot's own removal: %v", messenger.sent)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short unchanged", in: "hello", n: 10, want: "hello"},
		{name: "exact length unchanged", in: "hello", n: 5, want: "hello"},
		{name: "ascii cut", in: "hello", n: 3, want: "hel..."},
		{name: "cut inside a rune backs up", in: "aé", n: 2, want: "a..."},
		{name: "cut inside an emoji backs up", in: "hi\U0001F44B", n: 4, want: "hi..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestJoinRegistersUnknownGroup(t *testing.T) {
	b, _, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMemberEvent(ctx, &platform.MemberEvent{
		GroupID:   "-200",
		GroupName: "Fresh Group",
		Action:    platform.MemberAdd,
		Members:   []platform.Member{{ID: "1", Name: "alice"}},
	})

	gs, ok := b.settings.Get("-200")
	if !ok {
		t.Fatal("group not registered on member event")
	}
	if gs.WelcomeEnabled {
		t.Error("fresh group should start disabled")
	}
}
