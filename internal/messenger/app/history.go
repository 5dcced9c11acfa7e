package app

import (
	"context"

	"messenger_sync/internal/messenger/domain"
	"messenger_sync/internal/messenger/repository"
	errprocess "messenger_sync/pkg/err"

	"github.com/samber/lo"
)

// DefaultHistoryLimit page size when none is configured
const DefaultHistoryLimit = 50

// HistoryFetcher paginated backlog, pages are returned oldest first
type HistoryFetcher struct {
	repo  repository.MessengerRepository
	limit int
}

// NewHistoryFetcher create HistoryFetcher
func NewHistoryFetcher(repo repository.MessengerRepository, limit int) *HistoryFetcher {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &HistoryFetcher{repo: repo, limit: limit}
}

// LoadPage fetch one page. A nil cursor asks for the newest page.
// Refused without a request when no room is given or the cursor is exhausted.
func (h *HistoryFetcher) LoadPage(ctx context.Context, roomID string, cursor *domain.Cursor) (domain.HistoryPage, error) {
	if roomID == "" {
		return domain.HistoryPage{}, errprocess.ErrNoActiveRoom
	}
	from := ""
	if cursor != nil {
		if !cursor.HasMore || cursor.Token == "" {
			return domain.HistoryPage{}, errprocess.ErrHistoryExhausted
		}
		from = cursor.Token
	}

	page, err := h.repo.FetchHistory(ctx, roomID, h.limit, from)
	if err != nil {
		return domain.HistoryPage{}, err
	}

	// server 回傳新到舊
	page.RoomID = roomID
	page.Messages = lo.Reverse(append([]domain.Message(nil), page.Messages...))
	return page, nil
}
