package moderation

import (
	"strings"
	"time"

	"github.com/tjcrane/roomwarden/types"
)

// UpdateSeen records a human-readable last-seen descriptor for the user and
// returns it. detail is the room id, or the new id for renames. Activity in
// rooms the bot is not configured for, and in private rooms, is not tracked
// and yields "".
func (e *Engine) UpdateSeen(userId string, tag types.Tag, detail string, now time.Time) string {
	if (tag != types.TagRename && !e.cfg.IsConfiguredRoom(detail)) || e.cfg.IsPrivateRoom(detail) {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.record(userId, now)
	if detail == "" {
		return ""
	}
	var what string
	switch tag {
	case types.TagJoin:
		what = "joining "
	case types.TagLeave:
		what = "leaving "
	case types.TagChat, types.TagChatTimestamped:
		what = "chatting in "
	case types.TagRename:
		what = "changing nick to "
	}
	rec.LastSeen = what + strings.TrimSpace(detail) + "."
	rec.SeenAt = now
	return rec.LastSeen
}

// LastSeen returns the stored descriptor and timestamp for a user.
func (e *Engine) LastSeen(userId string) (string, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[userId]
	if !ok || rec.LastSeen == "" {
		return "", time.Time{}, false
	}
	return rec.LastSeen, rec.SeenAt, true
}
