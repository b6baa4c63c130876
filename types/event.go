package types

// Tag identifies the protocol line type, the closed set of values of the
// second pipe-delimited field.
type Tag int

const (
	TagUnknown Tag = iota
	TagChallenge
	TagUpdateUser
	TagChat
	TagChatTimestamped
	TagPM
	TagRename
	TagJoin
	TagLeave
	TagPopup
)

// TagOf maps the wire token to its Tag. Unlisted tokens are TagUnknown.
func TagOf(token string) Tag {
	switch token {
	case "challstr":
		return TagChallenge
	case "updateuser":
		return TagUpdateUser
	case "c":
		return TagChat
	case "c:":
		return TagChatTimestamped
	case "pm":
		return TagPM
	case "N":
		return TagRename
	case "J", "j":
		return TagJoin
	case "L", "l":
		return TagLeave
	case "popup":
		return TagPopup
	}
	return TagUnknown
}

// ChatEvent is the normalized shape of a parsed chat-carrying line. The
// per-tag field offsets (a timestamped chat line shifts user and text by one)
// are resolved by the parse functions, so consumers never index raw fields.
type ChatEvent struct {
	Tag       Tag
	Room      string // room id, empty for room-less lines
	User      string // raw username as sent, including the rank prefix
	Target    string // rename: the old id
	Timestamp int64  // unix seconds, 0 if the line carries none
	Text      string
}
