package protocol

import (
	"strconv"
	"strings"

	"github.com/tjcrane/roomwarden/types"
)

// The parse functions encode the per-tag field offsets of the wire format, so
// nothing outside this file does offset arithmetic on raw lines. A plain chat
// line is "|c|USER|TEXT..." with the text being the join of everything from
// field 3 on; the timestamped variant "|c:|TS|USER|TEXT..." shifts user and
// text by one.

func parseChat(fields []string, roomId string) types.ChatEvent {
	ev := types.ChatEvent{Tag: types.TagChat, Room: roomId}
	if len(fields) > 2 {
		ev.User = fields[2]
	}
	if len(fields) > 3 {
		ev.Text = strings.Join(fields[3:], "|")
	}
	return ev
}

func parseChatTimestamped(fields []string, roomId string) types.ChatEvent {
	ev := types.ChatEvent{Tag: types.TagChatTimestamped, Room: roomId}
	if len(fields) > 2 {
		ev.Timestamp, _ = strconv.ParseInt(fields[2], 10, 64)
	}
	if len(fields) > 3 {
		ev.User = fields[3]
	}
	if len(fields) > 4 {
		ev.Text = strings.Join(fields[4:], "|")
	}
	return ev
}

// "|pm|SENDER|RECEIVER|TEXT..."
func parsePM(fields []string) types.ChatEvent {
	ev := types.ChatEvent{Tag: types.TagPM}
	if len(fields) > 2 {
		ev.User = fields[2]
	}
	if len(fields) > 3 {
		ev.Target = fields[3]
	}
	if len(fields) > 4 {
		ev.Text = strings.Join(fields[4:], "|")
	}
	return ev
}

// "|N|NEWNAME|OLDID"
func parseRename(fields []string, roomId string) types.ChatEvent {
	ev := types.ChatEvent{Tag: types.TagRename, Room: roomId}
	if len(fields) > 2 {
		ev.User = fields[2]
	}
	if len(fields) > 3 {
		ev.Target = fields[3]
	}
	return ev
}

// "|J|USER" and "|L|USER"
func parsePresence(tag types.Tag, fields []string, roomId string) types.ChatEvent {
	ev := types.ChatEvent{Tag: tag, Room: roomId}
	if len(fields) > 2 {
		ev.User = fields[2]
	}
	return ev
}
