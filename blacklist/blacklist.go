package blacklist

import (
	"regexp"
	"strings"

	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/types"
)

// Index compiles the per-room blacklist entries from the settings blob into
// one matcher per room. Entries of the form /body/i are taken as explicit
// case-insensitive pattern bodies, anything else matches as an exact id.
// The compiled matcher is rebuilt in full on every mutation, so it always
// reflects the current entry set.
type Index struct {
	settings *types.Settings
	regexes  map[string]*regexp.Regexp

	// persist is invoked after any mutation to request a settings write.
	persist func()
}

func NewIndex(settings *types.Settings, persist func()) *Index {
	if persist == nil {
		persist = func() {}
	}
	return &Index{
		settings: settings,
		regexes:  make(map[string]*regexp.Regexp),
		persist:  persist,
	}
}

// Add inserts an entry into a room's blacklist and recompiles the room
// matcher. It returns false if the entry was already present.
func (ix *Index) Add(roomId, entry string) bool {
	if ix.settings.Blacklist == nil {
		ix.settings.Blacklist = make(map[string]map[string]int)
	}
	room := ix.settings.Blacklist[roomId]
	if room == nil {
		room = make(map[string]int)
		ix.settings.Blacklist[roomId] = room
	} else if _, ok := room[entry]; ok {
		return false
	}
	room[entry] = 1
	ix.Rebuild(roomId)
	ix.persist()
	return true
}

// Remove deletes an entry from a room's blacklist. Removing the last entry
// drops the room's matcher entirely. It returns false if the entry was not
// present.
func (ix *Index) Remove(roomId, entry string) bool {
	room := ix.settings.Blacklist[roomId]
	if room == nil {
		return false
	}
	if _, ok := room[entry]; !ok {
		return false
	}
	delete(room, entry)
	if len(room) == 0 {
		delete(ix.settings.Blacklist, roomId)
		delete(ix.regexes, roomId)
	} else {
		ix.Rebuild(roomId)
	}
	ix.persist()
	return true
}

// IsMatch reports whether the user id is blacklisted in the room. Rooms
// without a compiled matcher never match.
func (ix *Index) IsMatch(roomId, userId string) bool {
	re := ix.regexes[roomId]
	return re != nil && re.MatchString(userId)
}

// Rebuild recompiles a single room's matcher from the current entry set.
func (ix *Index) Rebuild(roomId string) {
	entries := ix.settings.Blacklist[roomId]
	if len(entries) == 0 {
		delete(ix.regexes, roomId)
		return
	}
	parts := make([]string, 0, len(entries))
	for entry := range entries {
		if strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/i") {
			parts = append(parts, entry[1:len(entry)-2])
		} else {
			parts = append(parts, "^"+regexp.QuoteMeta(entry)+"$")
		}
	}
	re, err := regexp.Compile("(?i)(?:" + strings.Join(parts, "|") + ")")
	if err != nil {
		// a malformed pattern entry must not take down the whole room list
		globals.AppLogger.Error("could not compile blacklist", "room", roomId, "error", err)
		return
	}
	ix.regexes[roomId] = re
}

// RebuildAll recompiles the matchers for every room present in the settings,
// called once after login when the settings blob has been loaded.
func (ix *Index) RebuildAll() {
	for roomId := range ix.settings.Blacklist {
		ix.Rebuild(roomId)
	}
}
