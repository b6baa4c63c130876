package protocol

import (
	"strings"

	"github.com/tjcrane/roomwarden/types"
)

// sectionRanks maps the section headers of a "room auth" popup to rank
// symbols.
var sectionRanks = map[string]string{
	"roomowners": "#",
	"moderators": "@",
	"drivers":    "%",
	"voices":     "+",
}

// handlePopup scrapes the "room auth" listing format into an id->rank table
// for the room. Other popups are not interpreted.
func (r *Router) handlePopup(fields []string) {
	if len(fields) < 3 || !strings.Contains(fields[2], "room auth") {
		return
	}
	roomId := types.ToId(strings.SplitN(fields[2], "room auth", 2)[0])
	if roomId == "" {
		return
	}
	sections := strings.Split(strings.Join(fields[3:], "|"), "||")
	auth := make(map[string]string)
	rank := ""
	for _, section := range sections {
		header := types.ToId(strings.SplitN(section, "(", 2)[0])
		if header == "" {
			continue
		}
		if symbol, ok := sectionRanks[header]; ok {
			rank = symbol
			continue
		}
		if rank == "" {
			continue
		}
		for _, name := range strings.Split(section, ", ") {
			if id := types.ToId(name); id != "" {
				auth[id] = rank
			}
		}
	}
	r.rooms.SetAuth(roomId, auth)
}
