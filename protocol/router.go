package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tjcrane/roomwarden/blacklist"
	"github.com/tjcrane/roomwarden/commands"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/history"
	"github.com/tjcrane/roomwarden/moderation"
	"github.com/tjcrane/roomwarden/store"
	"github.com/tjcrane/roomwarden/types"
)

const (
	frameMarker     = 'a'
	loginRetryDelay = time.Minute
)

// Sender emits one raw protocol line to the transport, fire-and-forget.
type Sender interface {
	Send(text string)
}

// LoginClient performs the challenge login exchange. retry marks recoverable
// server conditions worth one delayed re-attempt.
type LoginClient interface {
	Login(challengeKeyId, challenge string) (assertion string, retry bool, err error)
}

// Router demultiplexes raw transport frames into typed, room-scoped lines and
// dispatches them. It owns no persistent state itself; settings and mailbox
// are shared by reference and mutated only through paths that request a
// persist.
type Router struct {
	cfg      *config.Config
	settings *types.Settings
	mailbox  types.Mailbox
	store    *store.Store
	rooms    *directory.Rooms
	users    *directory.Users
	bans     *blacklist.Index
	engine   *moderation.Engine
	table    commands.Table
	archive  *history.Archive
	send     Sender
	login    LoginClient

	// fatal signals an unrecoverable condition (credential rejection).
	fatal func(msg string)
	// onReady fires once after the bot's own login is confirmed.
	onReady func()

	now       func() time.Time
	afterFunc func(d time.Duration, f func())
}

// Deps bundles the router's collaborators.
type Deps struct {
	Settings  *types.Settings
	Mailbox   types.Mailbox
	Store     *store.Store
	Rooms     *directory.Rooms
	Users     *directory.Users
	Blacklist *blacklist.Index
	Engine    *moderation.Engine
	Table     commands.Table
	Archive   *history.Archive
	Send      Sender
	Login     LoginClient
	Fatal     func(msg string)
	OnReady   func()
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	if deps.Mailbox == nil {
		deps.Mailbox = make(types.Mailbox)
	}
	if deps.Fatal == nil {
		deps.Fatal = func(msg string) { globals.AppLogger.Error(msg) }
	}
	return &Router{
		cfg:       cfg,
		settings:  deps.Settings,
		mailbox:   deps.Mailbox,
		store:     deps.Store,
		rooms:     deps.Rooms,
		users:     deps.Users,
		bans:      deps.Blacklist,
		engine:    deps.Engine,
		table:     deps.Table,
		archive:   deps.Archive,
		send:      deps.Send,
		login:     deps.Login,
		fatal:     deps.Fatal,
		onReady:   deps.OnReady,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Mailbox exposes the shared mailbox, for the command boundary.
func (r *Router) Mailbox() types.Mailbox { return r.mailbox }

// Ingest demultiplexes one raw transport frame. The frame is a marker byte
// followed by either a JSON string or a JSON array of strings, each processed
// independently in order. A malformed frame is dropped with an error.
func (r *Router) Ingest(frame []byte) error {
	if len(frame) == 0 || frame[0] != frameMarker {
		return fmt.Errorf("frame without %q marker", frameMarker)
	}
	payload := frame[1:]
	var batch []string
	if err := json.Unmarshal(payload, &batch); err != nil {
		var single string
		if err2 := json.Unmarshal(payload, &single); err2 != nil {
			return fmt.Errorf("invalid frame payload: %w", err)
		}
		batch = []string{single}
	}
	for _, message := range batch {
		r.splitMessage(message)
	}
	return nil
}

// splitMessage breaks one frame element into protocol lines and resolves the
// room scope from a leading ">roomid" header. Tournament bundles are dropped
// whole; init bundles seed the roster and return early.
func (r *Router) splitMessage(message string) {
	if message == "" {
		return
	}
	if !strings.Contains(message, "\n") {
		r.dispatch(message, "")
		return
	}
	lines := strings.Split(message, "\n")
	roomId := ""
	if strings.HasPrefix(lines[0], ">") {
		if len(lines) > 1 && strings.HasPrefix(lines[1], "|tournament") {
			return
		}
		roomId = lines[0][1:]
		lines = lines[1:]
		if len(lines) > 0 && strings.HasPrefix(lines[0], "|init|") {
			room := r.rooms.Add(roomId, r.cfg.IsPrivateRoom(roomId))
			if len(lines) > 2 && strings.HasPrefix(lines[2], "|users|") {
				room.OnUserlist(lines[2][len("|users|"):], r.users)
			}
			r.send.Send("|/roomauth " + roomId)
			globals.AppLogger.Info("joined room", "room", roomId, "users", room.Count())
			return
		}
	}
	for _, line := range lines {
		r.dispatch(line, roomId)
	}
}

// Say sends text to a room, or as a private message when the target is not a
// known room.
func (r *Router) Say(target, text string) {
	if r.rooms.Get(target) != nil {
		prefix := target
		if target == "lobby" {
			prefix = ""
		}
		r.send.Send(prefix + "|" + text)
		return
	}
	r.send.Send("|/pm " + target + ", " + text)
}

func (r *Router) joinAll() {
	for _, room := range r.cfg.Rooms {
		r.send.Send("|/join " + room)
	}
}
