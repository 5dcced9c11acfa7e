package app

import (
	"sync"
	"time"

	"messenger_sync/internal/messenger/domain"

	"github.com/samber/lo"
)

// Snapshot read-only copy of the Store
type Snapshot struct {
	Rooms        []domain.Room
	ActiveRoomID string
	// Messages window of the active room, oldest first
	Messages  []domain.Message
	Loading   bool
	HasMore   bool
	Connected bool
}

// Store local mirror of rooms and the active room's messages.
// Readers use the exported methods, every mutation goes through the Reconciler.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.Room
	order        []string
	activeRoomID string
	messages     []domain.Message
	seen         map[string]struct{}
	cursor       domain.Cursor
	loading      bool
	connected    bool
	// epoch 每次切換房間 +1, 用來丟棄過期的回應
	epoch  uint64
	recent map[string]*recentIDs

	watchMu   sync.Mutex
	notifyMu  sync.Mutex
	watchers  map[int]func(Snapshot)
	nextWatch int
}

// NewStore create Store
func NewStore() *Store {
	return &Store{
		rooms:    map[string]*domain.Room{},
		seen:     map[string]struct{}{},
		recent:   map[string]*recentIDs{},
		watchers: map[int]func(Snapshot){},
	}
}

// Snapshot copy of the whole state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Rooms:        s.roomsLocked(),
		ActiveRoomID: s.activeRoomID,
		Messages:     append([]domain.Message(nil), s.messages...),
		Loading:      s.loading,
		HasMore:      s.cursor.HasMore,
		Connected:    s.connected,
	}
}

// Rooms rooms in the order they were first observed
func (s *Store) Rooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomsLocked()
}

func (s *Store) roomsLocked() []domain.Room {
	return lo.Map(s.order, func(id string, _ int) domain.Room { return *s.rooms[id] })
}

// Room lookup by id
func (s *Store) Room(id string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return *r, true
}

// ActiveRoomID "" when no room is selected
func (s *Store) ActiveRoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRoomID
}

// Messages copy of the active window
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages...)
}

// Cursor continuation of the active room
func (s *Store) Cursor() domain.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Loading a history page is in flight
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Connected channel delivery is live
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Watch register fn for a snapshot after every change, returns the unregister func.
// fn runs inside the notification and must not synchronously call Watch, its cancel,
// or any Reconciler action; those notify again and would deadlock. Hand off to a
// goroutine instead.
func (s *Store) Watch(fn func(Snapshot)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.watchMu.Lock()
	fns := lo.Values(s.watchers)
	s.watchMu.Unlock()
	if len(fns) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// ---- mutations, Reconciler only ----

func (s *Store) recentLocked(roomID string) *recentIDs {
	r, ok := s.recent[roomID]
	if !ok {
		r = newRecentIDs(recentPerRoom)
		s.recent[roomID] = r
	}
	return r
}

// mergeRooms upsert listing results, rooms are never removed
func (s *Store) mergeRooms(rooms []domain.Room) {
	s.mergeRoomsAwaiting(rooms, nil)
}

// mergeRoomsAwaiting same as mergeRooms, but keeps the local unread of the rooms in
// awaiting. Their queued messages decide the count when replayed.
func (s *Store) mergeRoomsAwaiting(rooms []domain.Room, awaiting map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeRoomsLocked(rooms, awaiting)
}

func (s *Store) mergeRoomsLocked(rooms []domain.Room, awaiting map[string]struct{}) {
	for _, in := range rooms {
		if in.ID == "" {
			continue
		}
		_, held := awaiting[in.ID]
		cur, ok := s.rooms[in.ID]
		if !ok {
			r := in
			if r.ID == s.activeRoomID || held {
				r.UnreadCount = 0
			}
			s.rooms[r.ID] = &r
			s.order = append(s.order, r.ID)
			continue
		}

		cur.DisplayName = in.DisplayName
		cur.RoomType = in.RoomType
		cur.Topic = in.Topic
		cur.Membership = in.Membership
		// 本地預覽較新時保留
		if in.LastMessage != "" && !in.LastMessageTS.Before(cur.LastMessageTS) {
			cur.LastMessage = in.LastMessage
			cur.LastMessageTS = in.LastMessageTS
		}
		if in.UnreadCount > 0 && !held {
			cur.UnreadCount = in.UnreadCount
		}
		if cur.ID == s.activeRoomID {
			cur.UnreadCount = 0
		}
	}
}

// replayAwaiting merge the listing and apply msgs, queued while their room was
// unknown, in one step. The listing may already count some of msgs, so a replayed
// room ends with the larger of the listing's unread and the local count.
func (s *Store) replayAwaiting(rooms []domain.Room, msgs []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	awaiting := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		awaiting[m.RoomID] = struct{}{}
	}
	s.mergeRoomsLocked(rooms, awaiting)

	listed := lo.SliceToMap(rooms, func(r domain.Room) (string, int) { return r.ID, r.UnreadCount })
	for _, m := range msgs {
		s.ensureRoomLocked(m.RoomID)
		s.applyMessageLocked(m, true)
	}
	for id := range awaiting {
		room := s.rooms[id]
		if id == s.activeRoomID {
			room.UnreadCount = 0
			continue
		}
		room.UnreadCount = lo.Max([]int{room.UnreadCount, listed[id]})
	}
}

// upsertRoom add a room observed through create or join
func (s *Store) upsertRoom(room domain.Room) {
	s.mergeRooms([]domain.Room{room})
}

// ensureRoom add a placeholder when the listing still lacks roomID
func (s *Store) ensureRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureRoomLocked(roomID)
}

func (s *Store) ensureRoomLocked(roomID string) {
	if _, ok := s.rooms[roomID]; ok {
		return
	}
	s.rooms[roomID] = &domain.Room{
		ID:          roomID,
		DisplayName: roomID,
		RoomType:    domain.RoomTypeGeneral,
		Membership:  domain.MembershipUnknown,
	}
	s.order = append(s.order, roomID)
}

// selectRoom switch the active room, returns the new epoch
func (s *Store) selectRoom(roomID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.activeRoomID = roomID
	s.messages = nil
	s.seen = map[string]struct{}{}
	s.cursor = domain.Cursor{}
	s.loading = true
	if r, ok := s.rooms[roomID]; ok {
		r.UnreadCount = 0
	}
	return s.epoch
}

// beginOlder mark an older page as loading for the active room
func (s *Store) beginOlder() (roomID string, cursor domain.Cursor, epoch uint64, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRoomID == "" || s.loading {
		return s.activeRoomID, s.cursor, s.epoch, s.loading
	}
	s.loading = true
	return s.activeRoomID, s.cursor, s.epoch, false
}

// finishLoading clear the loading flag if epoch is still current
func (s *Store) finishLoading(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch == s.epoch {
		s.loading = false
	}
}

// mergeHistory splice an ascending page before the window.
// Messages already present are skipped, so a repeated page changes nothing.
// Returns false when the page is stale.
func (s *Store) mergeHistory(epoch uint64, page domain.HistoryPage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || page.RoomID != s.activeRoomID {
		return false
	}
	fresh := make([]domain.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, ok := s.seen[m.EventID]; ok {
			continue
		}
		s.seen[m.EventID] = struct{}{}
		s.recentLocked(page.RoomID).add(m.EventID)
		fresh = append(fresh, m)
	}
	s.messages = append(fresh, s.messages...)
	s.cursor = page.Cursor()
	s.loading = false
	return true
}

// applyMessage apply a delivered message, false when its room is unknown
func (s *Store) applyMessage(m domain.Message, countUnread bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMessageLocked(m, countUnread)
}

func (s *Store) applyMessageLocked(m domain.Message, countUnread bool) bool {
	room, ok := s.rooms[m.RoomID]
	if !ok {
		return false
	}

	isNew := s.recentLocked(m.RoomID).add(m.EventID)
	if m.RoomID == s.activeRoomID {
		if _, dup := s.seen[m.EventID]; !dup {
			s.seen[m.EventID] = struct{}{}
			s.messages = append(s.messages, m)
		}
	} else if countUnread && isNew {
		room.UnreadCount++
	}

	room.LastMessage = preview(m)
	room.LastMessageTS = m.Timestamp
	return true
}

func (s *Store) setConnected(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.connected != v
	s.connected = v
	return changed
}

func preview(m domain.Message) string {
	if m.Body == "" && m.Attachment != nil {
		return m.Attachment.Filename
	}
	return m.Body
}

// stamp fill a missing timestamp with the receive time
func stamp(m domain.Message, now func() time.Time) domain.Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = now().UTC()
	}
	return m
}
