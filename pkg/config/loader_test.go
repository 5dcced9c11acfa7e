package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("只有 defaults", func(t *testing.T) {
		cfg, err := LoadConfig[Client]("missing_service", t.TempDir(), ClientDefaults)

		require.NoError(t, err)
		assert.Equal(t, TransportSSE, cfg.Transport)
		assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
		assert.Equal(t, 50, cfg.HistoryLimit)
	})

	t.Run("yaml 覆蓋並展開環境變數", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("TEST_MESSENGER_TOKEN", "secret-token")
		yaml := []byte("server_url: http://chat.local:9000\n" +
			"token: ${TEST_MESSENGER_TOKEN}\n" +
			"transport: websocket\n" +
			"poll_interval: 1s\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "client.yaml"), yaml, 0o644))

		cfg, err := LoadConfig[Client]("client", dir, ClientDefaults)

		require.NoError(t, err)
		assert.Equal(t, "http://chat.local:9000", cfg.ServerURL)
		assert.Equal(t, "secret-token", cfg.Token)
		assert.Equal(t, TransportWebsocket, cfg.Transport)
		assert.Equal(t, time.Second, cfg.PollInterval)
		assert.Equal(t, 10*time.Second, cfg.OpenTimeout)
	})

	t.Run("驗證失敗", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "client.yaml"), []byte("transport: carrier-pigeon\n"), 0o644))

		_, err := LoadConfig[Client]("client", dir, ClientDefaults)

		assert.Error(t, err)
	})

	t.Run("dev server nested redis", func(t *testing.T) {
		dir := t.TempDir()
		yaml := []byte("broker: redis\nredis:\n  addr: localhost:6379\n  redis_db: 2\n")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "dev.yaml"), yaml, 0o644))

		cfg, err := LoadConfig[DevServer]("dev", dir, DevServerDefaults)

		require.NoError(t, err)
		assert.Equal(t, BrokerRedis, cfg.Broker)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 2, cfg.Redis.RedisDB)
		assert.Equal(t, 100, cfg.QueueSize)
	})
}
