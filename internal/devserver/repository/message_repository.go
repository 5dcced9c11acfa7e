package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	msgdomain "messenger_sync/internal/messenger/domain"

	"github.com/samber/lo"
)

// ErrBadToken continuation token cannot be decoded
var ErrBadToken = errors.New("bad continuation token")

// MessageRepository per room message log with read markers
type MessageRepository interface {
	Append(ctx context.Context, msg msgdomain.Message) error
	// Page returns up to limit messages newest first, ending before fromToken
	Page(ctx context.Context, roomID string, limit int, fromToken string) (msgs []msgdomain.Message, endToken string, hasMore bool, err error)
	Last(ctx context.Context, roomID string) (msgdomain.Message, bool)
	MarkRead(ctx context.Context, roomID, userID string)
	Unread(ctx context.Context, roomID, userID string) int
}

type memoryMessageRepository struct {
	mu   sync.RWMutex
	logs map[string][]msgdomain.Message
	// read[room][user] = 已讀到的訊息數
	read map[string]map[string]int
}

// NewMemoryMessageRepository create MessageRepository kept in memory
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		logs: map[string][]msgdomain.Message{},
		read: map[string]map[string]int{},
	}
}

func (r *memoryMessageRepository) Append(ctx context.Context, msg msgdomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[msg.RoomID] = append(r.logs[msg.RoomID], msg)
	return nil
}

// position token "p<index>", opaque to clients
func encodeToken(pos int) string { return "p" + strconv.Itoa(pos) }

func decodeToken(token string, max int) (int, error) {
	if !strings.HasPrefix(token, "p") {
		return 0, ErrBadToken
	}
	pos, err := strconv.Atoi(token[1:])
	if err != nil || pos < 0 || pos > max {
		return 0, ErrBadToken
	}
	return pos, nil
}

func (r *memoryMessageRepository) Page(ctx context.Context, roomID string, limit int, fromToken string) ([]msgdomain.Message, string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.logs[roomID]
	end := len(log)
	if fromToken != "" {
		pos, err := decodeToken(fromToken, len(log))
		if err != nil {
			return nil, "", false, err
		}
		end = pos
	}
	start := lo.Max([]int{0, end - limit})

	page := lo.Reverse(append([]msgdomain.Message{}, log[start:end]...))
	if start == 0 {
		return page, "", false, nil
	}
	return page, encodeToken(start), true, nil
}

func (r *memoryMessageRepository) Last(ctx context.Context, roomID string) (msgdomain.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.logs[roomID]
	if len(log) == 0 {
		return msgdomain.Message{}, false
	}
	return log[len(log)-1], true
}

func (r *memoryMessageRepository) MarkRead(ctx context.Context, roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.read[roomID] == nil {
		r.read[roomID] = map[string]int{}
	}
	r.read[roomID][userID] = len(r.logs[roomID])
}

func (r *memoryMessageRepository) Unread(ctx context.Context, roomID, userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.logs[roomID]
	from := r.read[roomID][userID]
	if from > len(log) {
		return 0
	}
	return lo.CountBy(log[from:], func(m msgdomain.Message) bool { return m.Sender != userID })
}
