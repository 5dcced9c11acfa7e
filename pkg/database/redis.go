package database

import (
	"context"
	"fmt"

	"messenger_sync/pkg/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient init Redis connection, Sentinel when sentinel addrs are set
func NewRedisClient(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	var rdb *redis.Client
	if len(c.SentinelAddrs) > 0 {
		masterName := c.MasterName
		if masterName == "" {
			masterName = "mymaster"
		}
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    masterName,      // 哨兵主节点名称
			SentinelAddrs: c.SentinelAddrs, // 哨兵地址列表
			DB:            c.RedisDB,
		})
	} else {
		if c.Addr == "" {
			return nil, fmt.Errorf("redis addr is empty")
		}
		rdb = redis.NewClient(&redis.Options{
			Addr: c.Addr,
			DB:   c.RedisDB,
		})
	}

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}
