package repository

import (
	"context"
	"fmt"
	"testing"

	"messenger_sync/pkg/config"
	"messenger_sync/pkg/database"
	"messenger_sync/pkg/logger"
	testtool "messenger_sync/pkg/test_tool"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("redis container test skipped in -short mode")
	}
	logger.SetNewNop()
	ctx := context.Background()

	// **啟動 Redis**
	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	client, err := database.NewRedisClient(ctx, config.RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port)})
	require.NoError(t, err)

	b := NewRedisBroker(client, 2)
	defer b.Close()

	brokerContract(t, b)
}
