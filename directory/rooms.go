package directory

import (
	"strings"

	"github.com/tjcrane/roomwarden/types"
)

// Room is one joined chat room and its roster.
type Room struct {
	Id      string
	Private bool

	users map[string]*User
}

// Has reports whether the user id is currently on the room roster.
func (r *Room) Has(userId string) bool {
	_, ok := r.users[userId]
	return ok
}

// Count returns the roster size.
func (r *Room) Count() int { return len(r.users) }

// Rooms is the room directory, the bookkeeping side of the feed's join,
// leave, rename and roster-init lines.
type Rooms struct {
	byId  map[string]*Room
	users *Users

	// auth holds the scraped room-authority listings: room id -> user id ->
	// rank symbol.
	auth map[string]map[string]string
}

func NewRooms(users *Users) *Rooms {
	return &Rooms{
		byId:  make(map[string]*Room),
		users: users,
		auth:  make(map[string]map[string]string),
	}
}

// Get returns the room or nil.
func (rs *Rooms) Get(id string) *Room { return rs.byId[id] }

// Add registers (or re-activates) a room.
func (rs *Rooms) Add(id string, private bool) *Room {
	room, ok := rs.byId[id]
	if !ok {
		room = &Room{Id: id, users: make(map[string]*User)}
		rs.byId[id] = room
	}
	room.Private = private
	return room
}

// List returns all known rooms.
func (rs *Rooms) List() []*Room {
	rooms := make([]*Room, 0, len(rs.byId))
	for _, r := range rs.byId {
		rooms = append(rooms, r)
	}
	return rooms
}

// OnUserlist seeds a room roster from the init-bundle payload, which is
// "<count>,<rank-prefixed name>,<rank-prefixed name>,...".
func (r *Room) OnUserlist(payload string, us *Users) {
	parts := strings.Split(payload, ",")
	if len(parts) < 2 {
		return
	}
	for _, name := range parts[1:] {
		r.OnJoin(name, us)
	}
}

// OnJoin adds a user to the roster and records their room rank from the name
// prefix. It returns nil for unparseable names.
func (r *Room) OnJoin(name string, us *Users) *User {
	u := us.Add(name)
	if u == nil {
		return nil
	}
	if rank, _ := splitRank(name); rank != "" {
		u.Ranks[r.Id] = rank
	}
	r.users[u.Id] = u
	return u
}

// OnLeave removes a user from the roster and returns them, or nil if the
// user was never resolved.
func (r *Room) OnLeave(name string, us *Users) *User {
	u := us.Get(name)
	if u == nil {
		return nil
	}
	delete(r.users, u.Id)
	return u
}

// OnRename rebinds a roster entry from the old id to the renamed user.
func (r *Room) OnRename(name, oldId string, us *Users) *User {
	delete(r.users, types.ToId(oldId))
	u := us.Rename(name, oldId)
	if u == nil {
		return nil
	}
	if rank, _ := splitRank(name); rank != "" {
		u.Ranks[r.Id] = rank
	}
	r.users[u.Id] = u
	return u
}

// SetAuth replaces the scraped authority listing for a room and applies the
// ranks to every already-known user.
func (rs *Rooms) SetAuth(roomId string, auth map[string]string) {
	rs.auth[roomId] = auth
	for userId, rank := range auth {
		if u := rs.users.Get(userId); u != nil {
			u.Ranks[roomId] = rank
		}
	}
}

// Auth returns the last scraped authority listing for a room, or nil.
func (rs *Rooms) Auth(roomId string) map[string]string { return rs.auth[roomId] }
