package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"messenger_sync/internal/messenger/channel"
	"messenger_sync/internal/messenger/domain"
	"messenger_sync/pkg/config"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"github.com/cucumber/godog"
	"github.com/samber/lo"
)

// fakeBackend in-memory MessengerRepository
type fakeBackend struct {
	mu      sync.Mutex
	rooms   []domain.Room
	history map[string][]domain.Message
	queue   []json.RawMessage
	sends   int

	// 下一次 ListRooms 先通知 holding 再等 hold
	hold    chan struct{}
	holding chan struct{}
}

func (b *fakeBackend) ListRooms(ctx context.Context) ([]domain.Room, error) {
	b.mu.Lock()
	rooms := append([]domain.Room(nil), b.rooms...)
	hold, holding := b.hold, b.holding
	b.hold, b.holding = nil, nil
	b.mu.Unlock()

	if hold != nil {
		close(holding)
		<-hold
	}
	return rooms, nil
}

// FetchHistory token is the index where the next older page ends
func (b *fakeBackend) FetchHistory(ctx context.Context, roomID string, limit int, fromToken string) (domain.HistoryPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.history[roomID]
	end := len(all)
	if fromToken != "" {
		n, err := strconv.Atoi(fromToken)
		if err != nil {
			return domain.HistoryPage{}, err
		}
		end = n
	}
	start := lo.Max([]int{0, end - limit})
	page := lo.Reverse(append([]domain.Message(nil), all[start:end]...))
	if start == 0 {
		return domain.HistoryPage{RoomID: roomID, Messages: page}, nil
	}
	return domain.HistoryPage{RoomID: roomID, Messages: page, EndToken: strconv.Itoa(start), HasMore: true}, nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, roomID, body string) (domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends++
	return domain.Message{EventID: fmt.Sprintf("$sent%d", b.sends), RoomID: roomID, Sender: "@me:hub", Body: body,
		MsgType: domain.MsgTypeText, Timestamp: time.Now().UTC()}, nil
}

func (b *fakeBackend) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	return domain.Room{}, errprocess.ErrInvalidRequest
}

func (b *fakeBackend) JoinRoom(ctx context.Context, roomID string) error { return nil }

func (b *fakeBackend) PollEvents(ctx context.Context) ([]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out, nil
}

type bddStream struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *bddStream) Next() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return nil, errprocess.ErrTransportClosed
	}
}

func (s *bddStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type bddTransport struct {
	unsupported bool
	opens       int32
	stream      *bddStream
}

func (t *bddTransport) Open(ctx context.Context) (channel.Stream, error) {
	atomic.AddInt32(&t.opens, 1)
	if t.unsupported {
		return nil, fmt.Errorf("event stream: unexpected status 404")
	}
	return t.stream, nil
}

type world struct {
	backend   *fakeBackend
	transport *bddTransport
	session   *Session
	started   bool
	opensAt   int32
	lastErr   error

	listRelease chan struct{}
	listHolding chan struct{}
}

func newWorld() *world {
	logger.SetNewNop()
	w := &world{
		backend: &fakeBackend{history: map[string][]domain.Message{}},
		transport: &bddTransport{stream: &bddStream{
			frames: make(chan []byte, 16),
			closed: make(chan struct{}),
		}},
	}
	cfg := config.Client{
		ServerURL:      "http://fake",
		OpenTimeout:    100 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		RequestTimeout: time.Second,
		HistoryLimit:   50,
	}
	w.session = NewSessionWith(cfg, w.backend, w.transport)
	return w
}

func (w *world) eventually(cond func() bool, what string) error {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", what)
}

func (w *world) serverHasRooms(a, b string) error {
	w.backend.rooms = []domain.Room{{ID: a, DisplayName: a}, {ID: b, DisplayName: b}}
	w.session.Reconciler.RefreshRooms(context.Background())
	return nil
}

func (w *world) selectRoom(id string) error {
	return w.session.Reconciler.SelectRoom(context.Background(), id)
}

func (w *world) deliver(eventID, roomID string, times int) error {
	frame, err := domain.MessageFrame(domain.Message{EventID: eventID, RoomID: roomID, Body: "body " + eventID,
		MsgType: domain.MsgTypeText, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	for i := 0; i < times; i++ {
		if w.started {
			w.transport.stream.frames <- frame
			continue
		}
		ev, err := domain.ParseEvent(frame)
		if err != nil {
			return err
		}
		w.session.Reconciler.ApplyIncoming(ev)
	}
	if w.started {
		time.Sleep(30 * time.Millisecond)
	}
	return nil
}

func (w *world) deliverOnce(eventID, roomID string) error  { return w.deliver(eventID, roomID, 1) }
func (w *world) deliverTwice(eventID, roomID string) error { return w.deliver(eventID, roomID, 2) }

func (w *world) windowContains(n int, eventID string) error {
	count := lo.CountBy(w.session.Store.Messages(), func(m domain.Message) bool { return m.EventID == eventID })
	if count != n {
		return fmt.Errorf("expected %d copies of %s, got %d", n, eventID, count)
	}
	return nil
}

func (w *world) roomHasUnreadMessages(roomID string, n int) error {
	for i := 0; i < n; i++ {
		if err := w.deliverOnce(fmt.Sprintf("$u%d", i), roomID); err != nil {
			return err
		}
	}
	return w.roomHasUnread(roomID, n)
}

func (w *world) roomHasUnread(roomID string, n int) error {
	r, ok := w.session.Store.Room(roomID)
	if !ok {
		return fmt.Errorf("room %s missing", roomID)
	}
	if r.UnreadCount != n {
		return fmt.Errorf("room %s unread %d, want %d", roomID, r.UnreadCount, n)
	}
	return nil
}

func (w *world) cursorIsReset() error {
	if c := w.session.Store.Cursor(); c.Token != "" || c.HasMore {
		return fmt.Errorf("cursor not reset: %+v", c)
	}
	return nil
}

func (w *world) send(body string) error {
	_, w.lastErr = w.session.Reconciler.SendMessage(context.Background(), body)
	return nil
}

func (w *world) windowEndsWith(body string) error {
	if w.lastErr != nil {
		return w.lastErr
	}
	msgs := w.session.Store.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].Body != body {
		return fmt.Errorf("window does not end with %q", body)
	}
	return nil
}

func (w *world) previewIs(roomID, body string) error {
	r, _ := w.session.Store.Room(roomID)
	if r.LastMessage != body {
		return fmt.Errorf("preview %q, want %q", r.LastMessage, body)
	}
	return nil
}

func (w *world) noSendRequest() error {
	if w.backend.sends != 0 {
		return fmt.Errorf("%d send requests made", w.backend.sends)
	}
	if w.lastErr == nil {
		return fmt.Errorf("blank send was not rejected")
	}
	return nil
}

func (w *world) serverAlsoHasRoom(roomID string) error {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.backend.rooms = append(w.backend.rooms, domain.Room{ID: roomID, DisplayName: roomID})
	return nil
}

func (w *world) serverAlsoHasRoomWithUnread(roomID string, n int) error {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.backend.rooms = append(w.backend.rooms, domain.Room{ID: roomID, DisplayName: roomID, UnreadCount: n})
	return nil
}

func (w *world) listingStalls() error {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.listRelease, w.listHolding = make(chan struct{}), make(chan struct{})
	w.backend.hold, w.backend.holding = w.listRelease, w.listHolding
	return nil
}

func (w *world) refreshedElsewhere() error {
	select {
	case <-w.listHolding:
	case <-time.After(time.Second):
		return errors.New("stalled listing was never requested")
	}
	w.session.Reconciler.RefreshRooms(context.Background())
	return nil
}

func (w *world) listingResumes() error {
	close(w.listRelease)
	w.session.Reconciler.Wait()
	return nil
}

func (w *world) eventuallyUnreadWithPreview(roomID string, n int, body string) error {
	return w.eventually(func() bool {
		return w.roomHasUnread(roomID, n) == nil && w.previewIs(roomID, body) == nil
	}, "unread and preview of "+roomID)
}

func (w *world) roomHasHistory(roomID string, n int) error {
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, testMsg(roomID, fmt.Sprintf("$h%03d", i), i))
	}
	w.backend.history[roomID] = msgs
	return nil
}

func (w *world) loadOlder() error {
	w.lastErr = w.session.Reconciler.LoadOlder(context.Background())
	return nil
}

func (w *world) refusedExhausted() error {
	if !errors.Is(w.lastErr, errprocess.ErrHistoryExhausted) {
		return fmt.Errorf("expected exhausted refusal, got %v", w.lastErr)
	}
	return nil
}

func (w *world) loadSamePageTwice() error {
	store := w.session.Store
	cursor := store.Cursor()
	roomID := store.ActiveRoomID()
	for i := 0; i < 2; i++ {
		page, err := w.session.Reconciler.history.LoadPage(context.Background(), roomID, &cursor)
		if err != nil {
			return err
		}
		store.mergeHistory(store.epoch, page)
	}
	return nil
}

func (w *world) windowHoldsUnique(n int) error {
	msgs := w.session.Store.Messages()
	if len(msgs) != n {
		return fmt.Errorf("window has %d messages, want %d", len(msgs), n)
	}
	if len(lo.UniqBy(msgs, func(m domain.Message) string { return m.EventID })) != n {
		return fmt.Errorf("window has duplicates")
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			return fmt.Errorf("window out of order at %d", i)
		}
	}
	return nil
}

func (w *world) pushUnsupported() error {
	w.transport.unsupported = true
	return nil
}

func (w *world) pollQueueHolds(eventID, roomID string) error {
	frame, err := domain.MessageFrame(domain.Message{EventID: eventID, RoomID: roomID, Body: "body " + eventID})
	if err != nil {
		return err
	}
	w.backend.queue = append(w.backend.queue, frame)
	return nil
}

func (w *world) sessionStarts() error {
	w.started = true
	return w.session.Start(context.Background())
}

func (w *world) connectedByPolling() error {
	return w.eventually(func() bool {
		return w.session.Channel.State() == channel.StatePolling && w.session.Store.Connected()
	}, "polling")
}

func (w *world) eventuallyPreview(roomID, body string) error {
	return w.eventually(func() bool { return w.previewIs(roomID, body) == nil }, "preview of "+roomID)
}

func (w *world) noFurtherPushAttempts() error {
	before := atomic.LoadInt32(&w.transport.opens)
	time.Sleep(80 * time.Millisecond)
	if after := atomic.LoadInt32(&w.transport.opens); after != before || after > 1 {
		return fmt.Errorf("push attempts went from %d to %d", before, after)
	}
	return nil
}

func (w *world) startedWithPush() error {
	if err := w.sessionStarts(); err != nil {
		return err
	}
	return w.eventually(func() bool { return w.session.Channel.State() == channel.StateStreaming }, "streaming")
}

func (w *world) disconnect() error {
	w.session.Close()
	if w.session.Store.Connected() {
		return fmt.Errorf("store still connected")
	}
	return nil
}

// InitializeScenario bind steps to a fresh world per scenario
func InitializeScenario(ctx *godog.ScenarioContext) {
	w := newWorld()

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		w.session.Close()
		return c, nil
	})

	ctx.Step(`^the server has rooms "([^"]*)" and "([^"]*)"$`, w.serverHasRooms)
	ctx.Step(`^I selected room "([^"]*)"$`, w.selectRoom)
	ctx.Step(`^I select room "([^"]*)"$`, w.selectRoom)
	ctx.Step(`^the channel delivers message "([^"]*)" in room "([^"]*)" twice$`, w.deliverTwice)
	ctx.Step(`^the channel delivers message "([^"]*)" in room "([^"]*)"$`, w.deliverOnce)
	ctx.Step(`^the window contains (\d+) message with id "([^"]*)"$`, w.windowContains)
	ctx.Step(`^room "([^"]*)" has (\d+) unread messages$`, w.roomHasUnreadMessages)
	ctx.Step(`^room "([^"]*)" has (\d+) unread$`, w.roomHasUnread)
	ctx.Step(`^the cursor is reset$`, w.cursorIsReset)
	ctx.Step(`^I send "([^"]*)"$`, w.send)
	ctx.Step(`^the window ends with "([^"]*)"$`, w.windowEndsWith)
	ctx.Step(`^room "([^"]*)" preview is "([^"]*)"$`, w.previewIs)
	ctx.Step(`^no send request was made$`, w.noSendRequest)
	ctx.Step(`^the server also has room "([^"]*)" not yet listed locally$`, w.serverAlsoHasRoom)
	ctx.Step(`^the server also has room "([^"]*)" with (\d+) unread not yet listed locally$`, w.serverAlsoHasRoomWithUnread)
	ctx.Step(`^the room listing stalls$`, w.listingStalls)
	ctx.Step(`^the room list is refreshed elsewhere$`, w.refreshedElsewhere)
	ctx.Step(`^the room listing resumes$`, w.listingResumes)
	ctx.Step(`^room "([^"]*)" eventually has (\d+) unread with preview "([^"]*)"$`, w.eventuallyUnreadWithPreview)
	ctx.Step(`^room "([^"]*)" has (\d+) messages in history$`, w.roomHasHistory)
	ctx.Step(`^I load older history$`, w.loadOlder)
	ctx.Step(`^loading older history is refused as exhausted$`, w.refusedExhausted)
	ctx.Step(`^I load the same older page twice$`, w.loadSamePageTwice)
	ctx.Step(`^the window holds (\d+) unique messages in ascending order$`, w.windowHoldsUnique)
	ctx.Step(`^the push transport is unsupported$`, w.pushUnsupported)
	ctx.Step(`^the poll queue holds message "([^"]*)" in room "([^"]*)"$`, w.pollQueueHolds)
	ctx.Step(`^the session starts$`, w.sessionStarts)
	ctx.Step(`^the session is connected by polling$`, w.connectedByPolling)
	ctx.Step(`^room "([^"]*)" eventually has preview "([^"]*)"$`, w.eventuallyPreview)
	ctx.Step(`^no further push attempts are made$`, w.noFurtherPushAttempts)
	ctx.Step(`^the session started with a working push transport$`, w.startedWithPush)
	ctx.Step(`^I disconnect$`, w.disconnect)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
