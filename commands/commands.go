package commands

import (
	"time"

	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/moderation"
	"github.com/tjcrane/roomwarden/types"
)

// Sender emits one outbound chat line to a room or user.
type Sender interface {
	Say(target, text string)
}

// Table is the command boundary: the router strips the configured command
// prefix and forwards the remainder here. Invoke reports whether the command
// was known and handled.
type Table interface {
	Invoke(name, arg string, user *directory.User, target string) bool
}

// Handler executes one named command. target is the room id, or the sender's
// id in a PM context.
type Handler func(arg string, user *directory.User, target string)

// Registry is a plain name->handler command table.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (t *Registry) Register(name string, h Handler) {
	t.handlers[name] = h
}

func (t *Registry) Invoke(name, arg string, user *directory.User, target string) bool {
	h, ok := t.handlers[types.ToId(name)]
	if !ok {
		return false
	}
	h(arg, user, target)
	return true
}

// SeenTracker answers when and where a user was last observed.
type SeenTracker interface {
	LastSeen(userId string) (string, time.Time, bool)
}

// RegisterBuiltins installs the built-in commands on the registry.
func RegisterBuiltins(t *Registry, seen SeenTracker, send Sender, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	t.Register("seen", func(arg string, user *directory.User, target string) {
		id := types.ToId(arg)
		if id == "" {
			return
		}
		desc, at, ok := seen.LastSeen(id)
		if !ok {
			send.Say(target, arg+" has never been seen.")
			return
		}
		send.Say(target, arg+" was last seen "+desc+" "+moderation.TimeAgo(at, now())+" ago.")
	})
}
