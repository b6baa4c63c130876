package directory

import (
	"strings"

	"github.com/tjcrane/roomwarden/types"
)

// rankOrder sorts the rank symbols from weakest to strongest. A user's
// effective rank is the symbol prefixed to their name on the wire or assigned
// per room through the room-authority listing.
const rankOrder = " +%@#&~"

// RankAtLeast reports whether rank is at least min in the rank order.
// Unknown symbols count as the weakest rank.
func RankAtLeast(rank, min string) bool {
	return strings.Index(rankOrder, rank) >= strings.Index(rankOrder, min)
}

// User is one known chat user. Identity is the normalized id; Name keeps the
// last display name seen on the wire.
type User struct {
	Id     string
	Name   string
	Global string            // global rank symbol, from the name prefix
	Ranks  map[string]string // room id -> rank symbol
}

// HasRank reports whether the user holds at least minRank in the room, via
// the room-specific rank when known and the global rank otherwise.
func (u *User) HasRank(roomId, minRank string) bool {
	if r, ok := u.Ranks[roomId]; ok && r != " " && r != "" {
		return RankAtLeast(r, minRank)
	}
	return u.HasGlobalRank(minRank)
}

// HasGlobalRank reports whether the user's global rank is at least minRank.
func (u *User) HasGlobalRank(minRank string) bool {
	if u.Global == "" {
		return RankAtLeast(" ", minRank)
	}
	return RankAtLeast(u.Global, minRank)
}

// Users is the user directory. It creates users lazily as they are observed
// on the feed and rebinds them on rename; entries are never removed.
type Users struct {
	byId map[string]*User
	self *User
}

func NewUsers(selfNick string) *Users {
	us := &Users{byId: make(map[string]*User)}
	us.self = us.Add(selfNick)
	return us
}

// Get looks a user up by name or id; the rank prefix is ignored. It returns
// nil for unknown users.
func (us *Users) Get(name string) *User {
	return us.byId[types.ToId(name)]
}

// Add creates (or updates the display name and global rank of) a user from a
// wire name, which may carry a rank prefix.
func (us *Users) Add(name string) *User {
	rank, bare := splitRank(name)
	id := types.ToId(bare)
	if id == "" {
		return nil
	}
	u, ok := us.byId[id]
	if !ok {
		u = &User{Id: id, Ranks: make(map[string]string)}
		us.byId[id] = u
	}
	u.Name = strings.TrimSpace(bare)
	if rank != "" {
		u.Global = rank
	}
	return u
}

// Rename rebinds the identity of oldId to the new wire name and returns the
// (possibly freshly created) user.
func (us *Users) Rename(name, oldId string) *User {
	_, bare := splitRank(name)
	newId := types.ToId(bare)
	u, ok := us.byId[types.ToId(oldId)]
	if !ok {
		return us.Add(name)
	}
	if newId != u.Id {
		delete(us.byId, u.Id)
		u.Id = newId
		us.byId[newId] = u
	}
	rank, _ := splitRank(name)
	u.Name = strings.TrimSpace(bare)
	if rank != "" {
		u.Global = rank
	}
	return u
}

// Self returns the bot's own user record.
func (us *Users) Self() *User { return us.self }

// IsSelf reports whether the user is the bot itself.
func (us *Users) IsSelf(u *User) bool { return u != nil && u == us.self }

// splitRank splits a wire name into its rank prefix (if any) and the bare
// name. A leading space is the "no rank" prefix.
func splitRank(name string) (rank, bare string) {
	if name == "" {
		return "", ""
	}
	if strings.ContainsAny(name[:1], rankOrder) && name[:1] != " " {
		return name[:1], name[1:]
	}
	if name[0] == ' ' {
		return "", name[1:]
	}
	return "", name
}
