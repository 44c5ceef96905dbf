package store

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"relay-chat/internal/domain"
	"relay-chat/internal/observability"
)

// DefaultHistoryLimit is the per-room retention cap applied when no
// override is configured.
const DefaultHistoryLimit = 100

const defaultDescription = "User created room"

var whitespaceRegex = regexp.MustCompile(`\s+`)

// RoomStore owns the room directory, per-room membership and bounded
// message history. The directory mutex guards the room map and creation
// order; each room carries its own mutex so independent rooms do not
// contend on membership or history mutations.
type RoomStore struct {
	mu           sync.RWMutex
	rooms        map[string]*roomState
	order        []string // room ids in creation order
	historyLimit int
}

type roomState struct {
	mu      sync.Mutex
	room    domain.Room
	members map[string]struct{}
	history []*domain.Message
}

// NewRoomStore creates a RoomStore seeded with the two default rooms.
// historyLimit <= 0 selects DefaultHistoryLimit.
func NewRoomStore(historyLimit int) *RoomStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	s := &RoomStore{
		rooms:        make(map[string]*roomState),
		historyLimit: historyLimit,
	}
	s.seed("General", "General discussion for everyone")
	s.seed("Random", "Random conversations and fun")
	return s
}

func (s *RoomStore) seed(name, description string) {
	id := DeriveRoomID(name)
	s.rooms[id] = &roomState{
		room: domain.Room{
			ID:          id,
			Name:        name,
			Description: description,
			CreatedAt:   time.Now(),
		},
		members: make(map[string]struct{}),
	}
	s.order = append(s.order, id)
	observability.RoomsActive.Inc()
}

// DeriveRoomID derives the canonical room id from a display name:
// lowercased, with whitespace runs collapsed to a single "-".
func DeriveRoomID(name string) string {
	return whitespaceRegex.ReplaceAllString(strings.ToLower(name), "-")
}

// List returns summaries of all rooms in creation order.
func (s *RoomStore) List() []*domain.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]*domain.RoomSummary, 0, len(s.order))
	for _, id := range s.order {
		summaries = append(summaries, s.rooms[id].summary())
	}
	return summaries
}

// Get returns the descriptive part of a room.
func (s *RoomStore) Get(roomID string) (*domain.Room, bool) {
	rs, ok := s.lookup(roomID)
	if !ok {
		return nil, false
	}
	room := rs.room
	return &room, true
}

// Summary returns the client-facing projection of a room.
func (s *RoomStore) Summary(roomID string) (*domain.RoomSummary, bool) {
	rs, ok := s.lookup(roomID)
	if !ok {
		return nil, false
	}
	return rs.summary(), true
}

// Create adds a room under the id derived from name. The collision check
// and the insert happen under the directory lock, so at most one of any
// set of concurrent creates for the same id succeeds.
func (s *RoomStore) Create(name, description, createdBy string) (*domain.RoomSummary, error) {
	id := DeriveRoomID(name)
	if description == "" {
		description = defaultDescription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[id]; exists {
		return nil, domain.ErrRoomExists
	}

	rs := &roomState{
		room: domain.Room{
			ID:          id,
			Name:        name,
			Description: description,
			CreatedBy:   createdBy,
			CreatedAt:   time.Now(),
		},
		members: make(map[string]struct{}),
	}
	s.rooms[id] = rs
	s.order = append(s.order, id)
	observability.RoomsActive.Inc()

	return rs.summary(), nil
}

// AddMember adds the connection to the room's member set. Idempotent;
// no-op when the room does not exist.
func (s *RoomStore) AddMember(roomID, connID string) {
	rs, ok := s.lookup(roomID)
	if !ok {
		return
	}
	rs.mu.Lock()
	rs.members[connID] = struct{}{}
	rs.mu.Unlock()
}

// RemoveMember removes the connection from the room's member set.
// Idempotent; removing a non-member or from a missing room is a no-op.
func (s *RoomStore) RemoveMember(roomID, connID string) {
	rs, ok := s.lookup(roomID)
	if !ok {
		return
	}
	rs.mu.Lock()
	delete(rs.members, connID)
	rs.mu.Unlock()
}

// RemoveMemberAll removes the connection from every room it is a member
// of and returns the ids of those rooms. In practice a connection belongs
// to at most one room; scanning all of them is defensive.
func (s *RoomStore) RemoveMemberAll(connID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var removed []string
	for _, id := range s.order {
		rs := s.rooms[id]
		rs.mu.Lock()
		if _, member := rs.members[connID]; member {
			delete(rs.members, connID)
			removed = append(removed, id)
		}
		rs.mu.Unlock()
	}
	return removed
}

// AppendMessage appends to the room's history and enforces the retention
// cap, dropping the oldest entries. Returns false when the room does not
// exist; callers are expected to have validated existence first.
func (s *RoomStore) AppendMessage(roomID string, msg *domain.Message) bool {
	rs, ok := s.lookup(roomID)
	if !ok {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.history = append(rs.history, msg)
	if len(rs.history) > s.historyLimit {
		// Copy the retained suffix so the dropped prefix can be freed.
		trimmed := make([]*domain.Message, s.historyLimit)
		copy(trimmed, rs.history[len(rs.history)-s.historyLimit:])
		rs.history = trimmed
	}
	return true
}

// History returns a snapshot of the room's messages, oldest first.
func (s *RoomStore) History(roomID string) []*domain.Message {
	rs, ok := s.lookup(roomID)
	if !ok {
		return nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	history := make([]*domain.Message, len(rs.history))
	copy(history, rs.history)
	return history
}

// Members returns a snapshot of the room's member connection ids.
func (s *RoomStore) Members(roomID string) []string {
	rs, ok := s.lookup(roomID)
	if !ok {
		return nil
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	members := make([]string, 0, len(rs.members))
	for connID := range rs.members {
		members = append(members, connID)
	}
	return members
}

// MemberCount returns the number of members in the room.
func (s *RoomStore) MemberCount(roomID string) int {
	rs, ok := s.lookup(roomID)
	if !ok {
		return 0
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.members)
}

func (s *RoomStore) lookup(roomID string) (*roomState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[roomID]
	return rs, ok
}

// summary must be called with the directory lock held or on a room state
// obtained from lookup; it takes the room lock for the member count.
func (rs *roomState) summary() *domain.RoomSummary {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return &domain.RoomSummary{
		ID:          rs.room.ID,
		Name:        rs.room.Name,
		Description: rs.room.Description,
		MemberCount: len(rs.members),
	}
}
