package client

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing-api/internal/config"
)

func TestNewRedisClient(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	cfg := &config.Config{Redis: config.RedisConfig{URL: "redis://" + server.Addr() + "/0", PoolSize: 4}}

	rc, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer rc.Close()

	assert.NoError(t, rc.HealthCheck(context.Background()))
	assert.NotNil(t, rc.PoolStats())

	server.Close()
	assert.Error(t, rc.HealthCheck(context.Background()))
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{URL: "not-a-url"}})
	assert.Error(t, err)
}
