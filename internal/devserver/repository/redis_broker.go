package repository

import (
	"context"
	"fmt"
	"time"

	"messenger_sync/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const mailboxTTL = 24 * time.Hour

// RedisBroker Broker over redis pub/sub, mailboxes are capped lists
type RedisBroker struct {
	client    *redis.Client
	queueSize int
}

// NewRedisBroker create RedisBroker
func NewRedisBroker(client *redis.Client, queueSize int) *RedisBroker {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &RedisBroker{client: client, queueSize: queueSize}
}

func channelKey(userID string) string { return fmt.Sprintf("messenger:user:%s", userID) }

func mailboxKey(userID string) string { return fmt.Sprintf("messenger:mailbox:%s", userID) }

// Publish 發布到使用者 channel 並寫入 mailbox
func (r *RedisBroker) Publish(ctx context.Context, userID string, frame []byte) error {
	key := mailboxKey(userID)
	pipe := r.client.TxPipeline()
	pipe.Publish(ctx, channelKey(userID), frame)
	pipe.RPush(ctx, key, frame)
	pipe.LTrim(ctx, key, int64(-r.queueSize), -1)
	pipe.Expire(ctx, key, mailboxTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Subscribe 訂閱使用者 channel, ctx 取消時關閉
func (r *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, error) {
	channel := channelKey(userID)
	sub := r.client.Subscribe(ctx, channel)
	// 等待訂閱確認, 之後的 Publish 才保證收得到
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan []byte, r.queueSize)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				default:
					logger.Log.Warn("subscriber queue full, dropping frame", zap.String("channel", channel))
				}
			case <-ctx.Done():
				logger.Log.Debug("unsubscribe", zap.String("channel", channel))
				return
			}
		}
	}()
	return out, nil
}

// Drain 取出並清空 mailbox
func (r *RedisBroker) Drain(ctx context.Context, userID string) ([][]byte, error) {
	key := mailboxKey(userID)
	pipe := r.client.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(items.Val()))
	for _, s := range items.Val() {
		out = append(out, []byte(s))
	}
	return out, nil
}

// Close close the redis client
func (r *RedisBroker) Close() error {
	return r.client.Close()
}
