package protocol

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tjcrane/roomwarden/blacklist"
	"github.com/tjcrane/roomwarden/commands"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/moderation"
	"github.com/tjcrane/roomwarden/store"
	"github.com/tjcrane/roomwarden/types"
)

type lineSink struct {
	lines []string
}

func (s *lineSink) Send(text string) { s.lines = append(s.lines, text) }

type fakeLogin struct {
	assertion string
	retry     bool
	err       error
	calls     int
}

func (l *fakeLogin) Login(keyId, challenge string) (string, bool, error) {
	l.calls++
	return l.assertion, l.retry, l.err
}

// relay lets the engine talk back through the router, which is created after
// the engine.
type relay struct {
	say func(target, text string)
}

func (r *relay) Say(target, text string) { r.say(target, text) }

type harness struct {
	cfg      *config.Config
	settings *types.Settings
	mailbox  types.Mailbox
	store    *store.Store
	users    *directory.Users
	rooms    *directory.Rooms
	bans     *blacklist.Index
	engine   *moderation.Engine
	sink     *lineSink
	login    *fakeLogin
	router   *Router

	now     time.Time
	fatals  []string
	ready   int
	pending []func() // captured afterFunc callbacks
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		cfg: &config.Config{
			Nick:          "Warden",
			ServerId:      "showdown",
			Rooms:         []string{"test"},
			AllowMute:     true,
			CommandPrefix: ".",
		},
		settings: &types.Settings{},
		mailbox:  make(types.Mailbox),
		sink:     &lineSink{},
		login:    &fakeLogin{assertion: "ASSERTION"},
		now:      time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.store = store.NewStore(filepath.Join(dir, "settings.json"), filepath.Join(dir, "messages.json"))
	h.users = directory.NewUsers(h.cfg.Nick)
	h.users.Self().Global = "@"
	h.rooms = directory.NewRooms(h.users)
	h.bans = blacklist.NewIndex(h.settings, nil)

	rel := &relay{}
	h.engine = moderation.NewEngine(h.cfg, h.settings, h.users, rel)

	table := commands.NewRegistry()
	commands.RegisterBuiltins(table, h.engine, rel, func() time.Time { return h.now })

	h.router = NewRouter(h.cfg, Deps{
		Settings:  h.settings,
		Mailbox:   h.mailbox,
		Store:     h.store,
		Rooms:     h.rooms,
		Users:     h.users,
		Blacklist: h.bans,
		Engine:    h.engine,
		Table:     table,
		Send:      h.sink,
		Login:     h.login,
		Fatal:     func(msg string) { h.fatals = append(h.fatals, msg) },
		OnReady:   func() { h.ready++ },
	})
	rel.say = h.router.Say
	h.router.now = func() time.Time { return h.now }
	h.router.afterFunc = func(d time.Duration, f func()) { h.pending = append(h.pending, f) }
	return h
}

// joinRoom plays an init bundle so the room and its roster exist.
func (h *harness) joinRoom(t *testing.T, userlist string) {
	t.Helper()
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|init|chat\n|title|Test\n|users|`+userlist+`"`)))
	h.sink.lines = nil
}

func TestIngestRejectsBadFrames(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.router.Ingest(nil))
	assert.Error(t, h.router.Ingest([]byte(`b"hello"`)), "wrong marker byte")
	assert.Error(t, h.router.Ingest([]byte(`a{"not":"a string"}`)))
	assert.NoError(t, h.router.Ingest([]byte(`a"|unhandled|line"`)))
}

func TestIngestBatch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a["|challstr|4|abc","|challstr|4|def"]`)))
	assert.Equal(t, 2, h.login.calls, "every element of a batch frame is dispatched")
}

func TestChallengeLogsIn(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|challstr|4|abc"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "|/trn Warden,0,ASSERTION", h.sink.lines[0])
}

func TestChallengeRetriesRecoverableFailures(t *testing.T) {
	h := newHarness(t)
	h.login.err = errors.New("the login server is under heavy load")
	h.login.retry = true
	require.NoError(t, h.router.Ingest([]byte(`a"|challstr|4|abc"`)))
	assert.Empty(t, h.sink.lines)
	assert.Empty(t, h.fatals)
	require.Len(t, h.pending, 1, "one delayed re-attempt is scheduled")

	h.login.err = nil
	h.login.retry = false
	h.pending[0]()
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "|/trn Warden,0,ASSERTION", h.sink.lines[0])
}

func TestChallengeFatalOnCredentialError(t *testing.T) {
	h := newHarness(t)
	h.login.err = errors.New("nick is registered - invalid or no password given")
	require.NoError(t, h.router.Ingest([]byte(`a"|challstr|4|abc"`)))
	assert.Empty(t, h.pending)
	require.Len(t, h.fatals, 1)
	assert.Contains(t, h.fatals[0], "failed to log in")
}

func TestUpdateUserConfirmsLogin(t *testing.T) {
	h := newHarness(t)
	h.cfg.AvatarNumber = 42
	require.NoError(t, h.router.Ingest([]byte(`a"|updateuser|Warden|1|101"`)))
	assert.Equal(t, []string{
		"|/blockchallenges",
		"|/avatar 42",
		"|/join test",
	}, h.sink.lines)
	assert.Equal(t, 1, h.ready)
}

func TestUpdateUserStillGuestIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|updateuser|Warden|0|101"`)))
	require.Len(t, h.fatals, 1)
	assert.Contains(t, h.fatals[0], "still guest")
	assert.Equal(t, 0, h.ready)
}

func TestUpdateUserForOthersIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|updateuser|SomeoneElse|0|101"`)))
	assert.Empty(t, h.fatals)
	assert.Empty(t, h.sink.lines)
}

func TestInitBundleSeedsRoster(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|init|chat\n|title|Test\n|users|3, Alice,+Bob,@Modess"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "|/roomauth test", h.sink.lines[0])

	room := h.rooms.Get("test")
	require.NotNil(t, room)
	assert.Equal(t, 3, room.Count())
	assert.True(t, room.Has("alice"))
	bob := h.users.Get("bob")
	require.NotNil(t, bob)
	assert.Equal(t, "+", bob.Ranks["test"])
}

func TestTournamentBundleDropped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|tournament|create|gen8randombattle\n|c|Alice|hello"`)))
	assert.Empty(t, h.sink.lines)
	assert.Nil(t, h.users.Get("alice"), "lines of a tournament bundle are never dispatched")
}

func TestChatIsScored(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `2, Alice,+Bob`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|Alice|AAAAAAAAAAAAAAAAAAAAAA"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|/warn alice, Automated response: caps", h.sink.lines[0])
}

func TestChatFromStaffNotScored(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1,%Driver`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|%Driver|AAAAAAAAAAAAAAAAAAAAAA"`)))
	assert.Empty(t, h.sink.lines)
}

func TestChatFromUnknownUserIgnored(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|Stranger|AAAAAAAAAAAAAAAAAAAAAA"`)))
	assert.Empty(t, h.sink.lines)
}

func TestTimestampedChatIsScored(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c:|1622548800|Alice|AAAAAAAAAAAAAAAAAAAAAA"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Contains(t, h.sink.lines[0], "/warn alice")
}

func TestBlacklistedUserBannedOnJoin(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	h.bans.Add("test", "troll")
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|J| Troll"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|/roomban troll, Blacklisted user", h.sink.lines[0])
}

func TestMailDeliveredOnJoin(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	sentAt := h.now.Add(-time.Minute).UnixNano() / int64(time.Millisecond)
	h.mailbox["bob"] = []types.MailEntry{{From: "alice", Time: sentAt, Text: "hi there"}}

	require.NoError(t, h.router.Ingest([]byte(`a">test\n|J| Bob"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|/pm bob, 1 minute ago, alice said: hi there", h.sink.lines[0])
	assert.NotContains(t, h.mailbox, "bob", "delivered mail is cleared")
	h.store.Flush()

	reloaded := make(types.Mailbox)
	h.store.Load(store.KindMailbox, &reloaded)
	assert.NotContains(t, reloaded, "bob", "the cleared mailbox is persisted")
}

func TestGreetingOnJoin(t *testing.T) {
	h := newHarness(t)
	h.cfg.Greetings = map[string]string{"bob": "welcome back!"}
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|J| Bob"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|welcome back!", h.sink.lines[0])
}

func TestLeaveUpdatesRoster(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `2, Alice, Bob`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|L| Bob"`)))
	room := h.rooms.Get("test")
	assert.False(t, room.Has("bob"))
	assert.True(t, room.Has("alice"))
}

func TestRenameRebindsRoster(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|N|+Alicia|alice"`)))
	room := h.rooms.Get("test")
	assert.False(t, room.Has("alice"))
	assert.True(t, room.Has("alicia"))
	u := h.users.Get("alicia")
	require.NotNil(t, u)
	assert.Equal(t, "Alicia", u.Name)

	desc, _, ok := h.engine.LastSeen("alice")
	require.True(t, ok)
	assert.Equal(t, "changing nick to alicia.", desc)
}

func TestPMInviteIsFollowed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|pm|%Mod|Warden|/invite newroom"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "|/join newroom", h.sink.lines[0])
}

func TestPMInviteToMainLobbyBlocked(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|pm|%Mod|Warden|/invite lobby"`)))
	assert.Empty(t, h.sink.lines)
}

func TestPMInviteFromUnrankedIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.Ingest([]byte(`a"|pm| Rando|Warden|/invite newroom"`)))
	assert.Empty(t, h.sink.lines)
}

func TestAutoReply(t *testing.T) {
	h := newHarness(t)
	h.cfg.Replies = map[string]string{"hi": "hello!"}
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|Alice|Hi"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|hello!", h.sink.lines[0])
}

func TestSeenCommand(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|J| Bob"`)))
	h.now = h.now.Add(40 * time.Second)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|Alice|.seen Bob"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|Bob was last seen joining test. 40 seconds ago.", h.sink.lines[0])
}

func TestSeenCommandUnknownUser(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `1, Alice`)
	require.NoError(t, h.router.Ingest([]byte(`a">test\n|c|Alice|.seen Ghost"`)))
	require.Len(t, h.sink.lines, 1)
	assert.Equal(t, "test|Ghost has never been seen.", h.sink.lines[0])
}

func TestSayTargets(t *testing.T) {
	h := newHarness(t)
	h.rooms.Add("test", false)
	h.rooms.Add("lobby", false)
	h.router.Say("test", "hello")
	h.router.Say("lobby", "hello")
	h.router.Say("bob", "hello")
	assert.Equal(t, []string{
		"test|hello",
		"|hello",
		"|/pm bob, hello",
	}, h.sink.lines)
}

func TestPopupRoomAuthScraped(t *testing.T) {
	h := newHarness(t)
	h.joinRoom(t, `2,@Modess, Carol`)
	line := `a">test\n|popup|test room auth:||Moderators (1):||modess||Drivers (1):||carol"`
	require.NoError(t, h.router.Ingest([]byte(line)))

	auth := h.rooms.Auth("test")
	require.NotNil(t, auth)
	assert.Equal(t, "@", auth["modess"])
	assert.Equal(t, "%", auth["carol"])
	carol := h.users.Get("carol")
	require.NotNil(t, carol)
	assert.Equal(t, "%", carol.Ranks["test"])
}

func TestKnownNoise(t *testing.T) {
	assert.True(t, isKnownNoise(",formats,,LL,gen8"))
	assert.True(t, isKnownNoise(",queryresponse,rooms,null"))
	assert.True(t, isKnownNoise("You are already blocking challenges!"))
	assert.True(t, isKnownNoise(",raw,<div>motd</div>"))
	assert.True(t, isKnownNoise(",updatechallenges,{}"))
	assert.False(t, isKnownNoise(",c,Alice,hello"))
}

func TestParseOffsets(t *testing.T) {
	ev := parseChat([]string{"", "c", "Alice", "one", "two"}, "test")
	assert.Equal(t, "Alice", ev.User)
	assert.Equal(t, "one|two", ev.Text, "pipes inside the text survive")

	ev = parseChatTimestamped([]string{"", "c:", "1622548800", "Bob", "hi"}, "test")
	assert.Equal(t, int64(1622548800), ev.Timestamp)
	assert.Equal(t, "Bob", ev.User)
	assert.Equal(t, "hi", ev.Text)

	ev = parsePM([]string{"", "pm", "+Alice", " Warden", "hello there"})
	assert.Equal(t, "+Alice", ev.User)
	assert.Equal(t, " Warden", ev.Target)
	assert.Equal(t, "hello there", ev.Text)

	ev = parseRename([]string{"", "N", "+NewNick", "oldguy"}, "test")
	assert.Equal(t, "+NewNick", ev.User)
	assert.Equal(t, "oldguy", ev.Target)
}
