package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"messenger_sync/internal/messenger/domain"
	"messenger_sync/internal/messenger/repository"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// Reconciler the only writer of the Store.
// It merges channel events, history pages and action results.
type Reconciler struct {
	store   *Store
	repo    repository.MessengerRepository
	history *HistoryFetcher
	log     *logger.LogInfo

	now            func() time.Time
	requestTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 未知房間的事件, 等待 refresh 完成.
	// refreshMu 也串行化 message 套用與 listing merge, 保持送出順序
	refreshMu  sync.Mutex
	refreshing bool
	pending    []domain.Message

	subMu   sync.RWMutex
	subs    map[int]func(domain.Event)
	nextSub int
}

// ReconcilerOption optional setting
type ReconcilerOption func(*Reconciler)

// WithClock replace time.Now, used when a pushed message has no timestamp
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithRequestTimeout bound background requests such as the room refresh
func WithRequestTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// NewReconciler create Reconciler
func NewReconciler(store *Store, repo repository.MessengerRepository, history *HistoryFetcher, opts ...ReconcilerOption) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		store:          store,
		repo:           repo,
		history:        history,
		log:            logger.Log.Named("reconciler"),
		now:            time.Now,
		requestTimeout: 15 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		subs:           map[int]func(domain.Event){},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close cancel background work and wait for it
func (r *Reconciler) Close() {
	r.cancel()
	r.wg.Wait()
}

// Wait block until background refreshes finish
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Subscribe receive every forwarded channel event after it is applied
func (r *Reconciler) Subscribe(fn func(domain.Event)) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Reconciler) publish(ev domain.Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, fn := range r.subs {
		fn(ev)
	}
}

// SetConnected mirror the channel's connected flag
func (r *Reconciler) SetConnected(v bool) {
	if r.store.setConnected(v) {
		r.store.notify()
	}
}

// RefreshRooms merge the server listing. Failures are logged, the Store stays as is.
func (r *Reconciler) RefreshRooms(ctx context.Context) {
	rooms, err := r.repo.ListRooms(ctx)
	if err != nil {
		r.log.Warn("list rooms failed", zap.Error(err))
		return
	}
	r.refreshMu.Lock()
	r.store.mergeRoomsAwaiting(rooms, r.awaitingLocked())
	r.refreshMu.Unlock()
	r.store.notify()
}

// awaitingLocked rooms with queued messages, refreshMu held
func (r *Reconciler) awaitingLocked() map[string]struct{} {
	if len(r.pending) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(r.pending))
	for _, m := range r.pending {
		out[m.RoomID] = struct{}{}
	}
	return out
}

// SelectRoom make roomID active and load its newest page
func (r *Reconciler) SelectRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errprocess.ErrNoActiveRoom
	}
	epoch := r.store.selectRoom(roomID)
	r.store.notify()

	page, err := r.history.LoadPage(ctx, roomID, nil)
	if err != nil {
		r.log.Warn("load history failed", zap.String("room_id", roomID), zap.Error(err))
		r.store.finishLoading(epoch)
		r.store.notify()
		return nil
	}
	if !r.store.mergeHistory(epoch, page) {
		r.log.Debug("discarding stale history page", zap.String("room_id", roomID))
		return nil
	}
	r.store.notify()
	return nil
}

// LoadOlder prepend the next older page of the active room
func (r *Reconciler) LoadOlder(ctx context.Context) error {
	roomID, cursor, epoch, busy := r.store.beginOlder()
	if roomID == "" {
		return errprocess.ErrNoActiveRoom
	}
	if busy {
		return errprocess.ErrHistoryBusy
	}

	page, err := r.history.LoadPage(ctx, roomID, &cursor)
	if err != nil {
		r.store.finishLoading(epoch)
		if errors.Is(err, errprocess.ErrHistoryExhausted) {
			return err
		}
		r.log.Warn("load older history failed", zap.String("room_id", roomID), zap.Error(err))
		r.store.notify()
		return nil
	}
	if r.store.mergeHistory(epoch, page) {
		r.store.notify()
	}
	return nil
}

// ApplyIncoming apply one channel event then hand it to subscribers
func (r *Reconciler) ApplyIncoming(ev domain.Event) {
	if me, ok := ev.(domain.MessageEvent); ok {
		msg := stamp(me.Message, r.now)
		if r.applyOrQueue(msg) {
			r.store.notify()
		}
		ev = domain.MessageEvent{Message: msg}
	}
	r.publish(ev)
}

// applyOrQueue apply msg, or queue it behind earlier messages of the same room
// that still wait for the listing. Returns false when queued.
func (r *Reconciler) applyOrQueue(msg domain.Message) bool {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if _, waiting := r.awaitingLocked()[msg.RoomID]; !waiting && r.store.applyMessage(msg, true) {
		return true
	}
	r.pending = append(r.pending, msg)
	if r.refreshing {
		return false
	}
	r.refreshing = true

	r.log.Debug("message for unknown room, refreshing rooms", zap.String("room_id", msg.RoomID))
	r.wg.Add(1)
	go r.replayAfterRefresh()
	return false
}

// replayAfterRefresh load the listing once for every queued message, then merge and
// replay them in arrival order
func (r *Reconciler) replayAfterRefresh() {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, r.requestTimeout)
	rooms, err := r.repo.ListRooms(ctx)
	cancel()
	if err != nil {
		r.log.Warn("list rooms failed", zap.Error(err))
	}

	r.refreshMu.Lock()
	batch := r.pending
	r.pending = nil
	r.refreshing = false
	if r.ctx.Err() != nil {
		r.refreshMu.Unlock()
		return
	}
	r.store.replayAwaiting(rooms, batch)
	r.refreshMu.Unlock()

	r.store.notify()
}

// SendMessage send body to the active room. Blank bodies and a missing room are
// rejected without a request.
func (r *Reconciler) SendMessage(ctx context.Context, body string) (domain.Message, error) {
	roomID := r.store.ActiveRoomID()
	if roomID == "" {
		return domain.Message{}, errprocess.ErrNoActiveRoom
	}
	text := strings.TrimSpace(body)
	if text == "" {
		return domain.Message{}, errprocess.ErrEmptyMessage
	}

	msg, err := r.repo.SendMessage(ctx, roomID, text)
	if err != nil {
		return domain.Message{}, errprocess.Wrap(err, "send message")
	}
	msg = stamp(msg, r.now)
	if msg.RoomID == "" {
		msg.RoomID = roomID
	}
	r.store.ensureRoom(msg.RoomID)
	r.store.applyMessage(msg, false)
	r.store.notify()
	return msg, nil
}

// CreateRoom create a room and add it to the Store
func (r *Reconciler) CreateRoom(ctx context.Context, name, topic string, inviteUsers []string) (domain.Room, error) {
	req := domain.CreateRoomRequest{Name: strings.TrimSpace(name), Topic: topic, InviteUsers: inviteUsers}
	if err := validate.Struct(req); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errprocess.ErrInvalidRequest, err)
	}

	room, err := r.repo.CreateRoom(ctx, req)
	if err != nil {
		return domain.Room{}, errprocess.Wrap(err, "create room")
	}
	r.store.upsertRoom(room)
	r.store.notify()
	return room, nil
}

// JoinRoom join then refresh the listing
func (r *Reconciler) JoinRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errprocess.ErrInvalidRequest
	}
	if err := r.repo.JoinRoom(ctx, roomID); err != nil {
		return errprocess.Wrap(err, "join room")
	}
	r.RefreshRooms(ctx)
	return nil
}
