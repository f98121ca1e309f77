package state

import (
	"errors"
	"sync"
)

// Room is a named multicast group identified by an opaque, space-free byte
// string. Rooms are created lazily on first join and removed when their
// last member leaves; no other metadata is persisted.
type Room string

var (
	// ErrNicknameCollision indicates the nickname is already registered.
	ErrNicknameCollision = errors.New("state: nickname already registered")
	// ErrServerFull indicates the registry has reached its configured
	// admission cap.
	ErrServerFull = errors.New("state: server is full")
	// ErrAlreadyInRoom indicates the nickname is already a member of the room.
	ErrAlreadyInRoom = errors.New("state: already in room")
	// ErrNotInRoom indicates the nickname is not a member of the room.
	ErrNotInRoom = errors.New("state: not in room")
	// ErrInvalidRoom indicates no such room exists.
	ErrInvalidRoom = errors.New("state: invalid room")
)

// Registry is the single authoritative store of registered nicknames and
// room membership, guarded by one coarse-grained lock. Critical sections are
// short: callers that need to perform I/O (fan-out writes) must snapshot
// under the lock via MembersSnapshot/WritersSnapshot and release it before
// writing -- a single map-backed store with snapshot-before-I/O accessors,
// generalized here to also track room membership.
type Registry struct {
	mu sync.RWMutex

	users map[Nickname]*Session
	rooms map[Room][]Nickname

	// maxUsers caps concurrent registered nicknames; 0 means unlimited.
	maxUsers int
}

// NewRegistry creates an empty Registry. maxUsers of 0 disables the
// admission cap.
func NewRegistry(maxUsers int) *Registry {
	return &Registry{
		users:    make(map[Nickname]*Session),
		rooms:    make(map[Room][]Nickname),
		maxUsers: maxUsers,
	}
}

// Register adds nick to the registry bound to sess. Returns
// ErrNicknameCollision if nick is already registered, or ErrServerFull if
// the registry is at its admission cap.
func (r *Registry) Register(nick Nickname, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[nick]; ok {
		return ErrNicknameCollision
	}
	if r.maxUsers > 0 && len(r.users) >= r.maxUsers {
		return ErrServerFull
	}
	r.users[nick] = sess
	return nil
}

// Unregister removes nick from the registry and from every room it belongs
// to, deleting any room that becomes empty as a result. Idempotent.
func (r *Registry) Unregister(nick Nickname) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, nick)
	for room, members := range r.rooms {
		r.rooms[room] = removeNickname(members, nick)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Join adds nick to room, creating the room if it doesn't yet exist.
// Returns ErrAlreadyInRoom if nick is already a member.
func (r *Registry) Join(nick Nickname, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if containsNickname(members, nick) {
		return ErrAlreadyInRoom
	}
	r.rooms[room] = append(members, nick)
	return nil
}

// Leave removes nick from room, deleting the room if it becomes empty.
// Returns ErrInvalidRoom if the room doesn't exist, or ErrNotInRoom if nick
// is not a member.
func (r *Registry) Leave(nick Nickname, room Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return ErrInvalidRoom
	}
	if !containsNickname(members, nick) {
		return ErrNotInRoom
	}
	remaining := removeNickname(members, nick)
	if len(remaining) == 0 {
		delete(r.rooms, room)
	} else {
		r.rooms[room] = remaining
	}
	return nil
}

// RoomsOf returns the rooms nick currently belongs to.
func (r *Registry) RoomsOf(nick Nickname) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rooms []Room
	for room, members := range r.rooms {
		if containsNickname(members, nick) {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// ListRooms returns every currently existing room.
func (r *Registry) ListRooms() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]Room, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// ListUsers returns every currently registered nickname.
func (r *Registry) ListUsers() []Nickname {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]Nickname, 0, len(r.users))
	for nick := range r.users {
		users = append(users, nick)
	}
	return users
}

// Members returns a copy of room's member list in insertion order, or
// ErrInvalidRoom if the room doesn't exist. The copy is safe to use after
// the registry lock is released, which is the whole point: fan-out handlers
// call Members (or MembersSnapshot) once, then write to peers without
// holding the lock.
func (r *Registry) Members(room Room) ([]Nickname, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil, ErrInvalidRoom
	}
	out := make([]Nickname, len(members))
	copy(out, members)
	return out, nil
}

// MembersSnapshot is an alias for Members, named for the fan-out-safe copy
// operation it performs.
func (r *Registry) MembersSnapshot(room Room) ([]Nickname, error) {
	return r.Members(room)
}

// Writer returns the session bound to nick, for direct delivery, and
// whether it was found.
func (r *Registry) Writer(nick Nickname) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.users[nick]
	return sess, ok
}

// UserSession pairs a nickname with its session, returned by
// WritersSnapshot.
type UserSession struct {
	Nickname Nickname
	Session  *Session
}

// WritersSnapshot returns every (nickname, session) pair currently
// registered, used for global broadcast and shutdown.
func (r *Registry) WritersSnapshot() []UserSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserSession, 0, len(r.users))
	for nick, sess := range r.users {
		out = append(out, UserSession{Nickname: nick, Session: sess})
	}
	return out
}

func containsNickname(list []Nickname, nick Nickname) bool {
	for _, n := range list {
		if n == nick {
			return true
		}
	}
	return false
}

func removeNickname(list []Nickname, nick Nickname) []Nickname {
	out := list[:0:0]
	for _, n := range list {
		if n != nick {
			out = append(out, n)
		}
	}
	return out
}
