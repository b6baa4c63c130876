package types

// MailEntry is one pending message left for an offline user, delivered the
// next time they join a room the bot is in.
type MailEntry struct {
	From string `json:"from"`
	Time int64  `json:"time"` // unix milliseconds
	Text string `json:"text"`
}

// Mailbox maps a recipient user id to their pending mail, oldest first.
type Mailbox map[string][]MailEntry
