package repository

import (
	"context"
	"sync"

	"messenger_sync/pkg/logger"

	"go.uber.org/zap"
)

// Broker per user event fan-out.
// Every published frame goes to the live subscribers and to a bounded poll mailbox.
type Broker interface {
	Publish(ctx context.Context, userID string, frame []byte) error
	// Subscribe returns a channel closed when ctx is done
	Subscribe(ctx context.Context, userID string) (<-chan []byte, error)
	// Drain returns and clears the mailbox
	Drain(ctx context.Context, userID string) ([][]byte, error)
	Close() error
}

type memoryBroker struct {
	mu        sync.Mutex
	queueSize int
	subs      map[string]map[chan []byte]struct{}
	mailbox   map[string][][]byte
}

// NewMemoryBroker create Broker kept in memory
func NewMemoryBroker(queueSize int) Broker {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &memoryBroker{
		queueSize: queueSize,
		subs:      map[string]map[chan []byte]struct{}{},
		mailbox:   map[string][][]byte{},
	}
}

func (b *memoryBroker) Publish(ctx context.Context, userID string, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[userID] {
		select {
		case ch <- frame:
		default:
			logger.Log.Warn("subscriber queue full, dropping frame", zap.String("user_id", userID))
		}
	}

	box := append(b.mailbox[userID], frame)
	if len(box) > b.queueSize {
		// 丟掉最舊的
		box = box[len(box)-b.queueSize:]
	}
	b.mailbox[userID] = box
	return nil
}

func (b *memoryBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, error) {
	ch := make(chan []byte, b.queueSize)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = map[chan []byte]struct{}{}
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (b *memoryBroker) Drain(ctx context.Context, userID string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.mailbox[userID]
	delete(b.mailbox, userID)
	return out, nil
}

func (b *memoryBroker) Close() error { return nil }
