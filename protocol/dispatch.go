package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/moderation"
	"github.com/tjcrane/roomwarden/store"
	"github.com/tjcrane/roomwarden/types"
)

// knownNoise are unhandled lines that are pure config/format echoes; they are
// suppressed instead of logged. The comparison key is the line's fields
// joined with commas.
func isKnownNoise(joined string) bool {
	return strings.HasPrefix(joined, ",formats,") ||
		joined == ",queryresponse,rooms,null" ||
		joined == "You are already blocking challenges!" ||
		strings.HasPrefix(joined, ",raw") ||
		strings.HasPrefix(joined, ",updatechallenges,")
}

// dispatch splits one protocol line on the field delimiter and switches on
// the type tag.
func (r *Router) dispatch(line, roomId string) {
	if line == "" {
		return
	}
	fields := strings.Split(line, "|")
	tag := types.TagUnknown
	if len(fields) > 1 {
		tag = types.TagOf(fields[1])
	}
	switch tag {
	case types.TagChallenge:
		r.handleChallenge(line, fields)
	case types.TagUpdateUser:
		r.handleUpdateUser(fields)
	case types.TagChat:
		r.handleChat(parseChat(fields, roomId))
	case types.TagChatTimestamped:
		r.handleChat(parseChatTimestamped(fields, roomId))
	case types.TagPM:
		r.handlePM(parsePM(fields))
	case types.TagRename:
		r.handleRename(parseRename(fields, roomId))
	case types.TagJoin:
		r.handleJoin(parsePresence(types.TagJoin, fields, roomId))
	case types.TagLeave:
		r.handleLeave(parsePresence(types.TagLeave, fields, roomId))
	case types.TagPopup:
		r.handlePopup(fields)
	default:
		if !isKnownNoise(strings.Join(fields, ",")) {
			globals.AppLogger.Debug("unhandled protocol line", "line", line)
		}
	}
}

func (r *Router) handleChallenge(line string, fields []string) {
	if len(fields) < 4 {
		globals.AppLogger.Warn("malformed challenge line", "line", line)
		return
	}
	globals.AppLogger.Info("received challenge, logging in")
	assertion, retry, err := r.login.Login(fields[2], fields[3])
	if err != nil {
		if retry {
			globals.AppLogger.Error("recoverable login failure; trying again in one minute", "error", err)
			r.afterFunc(loginRetryDelay, func() { r.dispatch(line, "") })
			return
		}
		r.fatal("failed to log in: " + err.Error())
		return
	}
	r.send.Send("|/trn " + r.cfg.Nick + ",0," + assertion)
}

func (r *Router) handleUpdateUser(fields []string) {
	if len(fields) < 4 {
		return
	}
	if types.ToId(fields[2]) != types.ToId(r.cfg.Nick) {
		return
	}
	if fields[3] != "1" {
		r.fatal("failed to log in, still guest")
		return
	}
	globals.AppLogger.Info("logged in", "nick", fields[2])
	r.send.Send("|/blockchallenges")
	if r.cfg.AvatarNumber > 0 {
		r.send.Send("|/avatar " + strconv.Itoa(r.cfg.AvatarNumber))
	}
	r.joinAll()
	r.bans.RebuildAll()
	if r.onReady != nil {
		r.onReady()
	}
}

func (r *Router) handleChat(ev types.ChatEvent) {
	if ev.Room == "" || ev.User == "" {
		return
	}
	user := r.users.Get(ev.User)
	if user == nil {
		// various "chat" responses contain other data
		return
	}
	if r.users.IsSelf(user) {
		return
	}
	if r.bans.IsMatch(ev.Room, user.Id) {
		r.Say(ev.Room, "/roomban "+user.Id+", Blacklisted user")
	}
	now := r.now()
	if !user.HasRank(ev.Room, "%") {
		if desc := r.engine.UpdateSeen(user.Id, ev.Tag, ev.Room, now); desc != "" {
			r.archive.StoreUser(user.Id, desc, now)
		}
		r.engine.Score(user, ev.Room, ev.Text, now)
	}
	r.archive.StoreChat(ev.Room, user.Id, ev.Text, now)
	r.chatMessage(ev.Text, user, ev.Room, false)
}

func (r *Router) handlePM(ev types.ChatEvent) {
	user := r.users.Get(ev.User)
	if user == nil {
		user = r.users.Add(ev.User)
		if user == nil {
			return
		}
	}
	if r.users.IsSelf(user) {
		return
	}
	text := strings.TrimSpace(ev.Text)
	if target, ok := inviteTarget(text); ok && user.HasGlobalRank("%") && !r.disallowedJoin(target) {
		r.send.Send("|/join " + target)
		return
	}
	r.chatMessage(text, user, user.Id, true)
}

func (r *Router) handleRename(ev types.ChatEvent) {
	room := r.rooms.Get(ev.Room)
	if room == nil {
		return
	}
	user := room.OnRename(ev.User, ev.Target, r.users)
	if user == nil {
		return
	}
	if r.bans.IsMatch(ev.Room, user.Id) {
		r.Say(ev.Room, "/roomban "+user.Id+", Blacklisted user")
	}
	now := r.now()
	if desc := r.engine.UpdateSeen(types.ToId(ev.Target), types.TagRename, user.Id, now); desc != "" {
		r.archive.StoreUser(types.ToId(ev.Target), desc, now)
	}
	r.archive.StorePresence(ev.Room, user.Id, "rename", now)
}

func (r *Router) handleJoin(ev types.ChatEvent) {
	room := r.rooms.Get(ev.Room)
	if room == nil {
		return
	}
	user := room.OnJoin(ev.User, r.users)
	if user == nil || r.users.IsSelf(user) {
		return
	}
	if r.bans.IsMatch(ev.Room, user.Id) {
		r.Say(ev.Room, "/roomban "+user.Id+", Blacklisted user")
	}
	now := r.now()
	if desc := r.engine.UpdateSeen(user.Id, types.TagJoin, room.Id, now); desc != "" {
		r.archive.StoreUser(user.Id, desc, now)
	}
	r.archive.StorePresence(room.Id, user.Id, "join", now)

	// deliver pending mail, then clear and persist
	if mail := r.mailbox[user.Id]; len(mail) > 0 {
		for _, m := range mail {
			sent := moderation.TimeAgo(msTime(m.Time), now)
			r.Say(room.Id, "/pm "+user.Id+", "+sent+" ago, "+m.From+" said: "+m.Text)
		}
		delete(r.mailbox, user.Id)
		r.store.Request(store.KindMailbox, r.mailbox)
	}
	if greeting, ok := r.cfg.Greetings[user.Id]; ok {
		r.Say(room.Id, greeting)
	}
}

func (r *Router) handleLeave(ev types.ChatEvent) {
	room := r.rooms.Get(ev.Room)
	if room == nil {
		return
	}
	now := r.now()
	user := room.OnLeave(ev.User, r.users)
	if user != nil {
		if r.users.IsSelf(user) {
			return
		}
		if desc := r.engine.UpdateSeen(user.Id, types.TagLeave, room.Id, now); desc != "" {
			r.archive.StoreUser(user.Id, desc, now)
		}
		r.archive.StorePresence(room.Id, user.Id, "leave", now)
		return
	}
	r.engine.UpdateSeen(types.ToId(ev.User), types.TagLeave, room.Id, now)
}

// chatMessage is the passive chat handler: auto-replies, chat logging and
// command forwarding. target is the room id, or the sender's id in a PM
// context.
func (r *Router) chatMessage(message string, user *directory.User, target string, isPM bool) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	if isPM {
		// auto accept invitations to rooms
		if invited, ok := inviteTarget(message); ok && user.HasGlobalRank("%") && !r.disallowedJoin(invited) {
			r.send.Send("|/join " + invited)
		}
	}
	if r.cfg.LogChat {
		globals.AppLogger.Info("chat", "target", target, "user", user.Name, "text", message)
	}
	if reply, ok := r.cfg.Replies[types.ToId(message)]; ok {
		r.Say(target, reply)
	}
	if !strings.HasPrefix(message, r.cfg.CommandPrefix) {
		return
	}
	rest := message[len(r.cfg.CommandPrefix):]
	name, arg := rest, ""
	if i := strings.Index(rest, " "); i > -1 {
		name = rest[:i]
		arg = strings.TrimSpace(rest[i+1:])
	}
	if r.table != nil && name != "" {
		r.table.Invoke(name, arg, user, target)
	}
}

func inviteTarget(text string) (string, bool) {
	const prefix = "/invite "
	if strings.HasPrefix(text, prefix) {
		return strings.TrimSpace(text[len(prefix):]), true
	}
	return "", false
}

// disallowedJoin blocks invite-conversions into the main server lobby.
func (r *Router) disallowedJoin(target string) bool {
	return types.ToId(target) == "lobby" && r.cfg.ServerId == "showdown"
}

func msTime(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}
