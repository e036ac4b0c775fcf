package db

import (
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/photo-payments/pkg/config"
)

func TestConnectRedis(t *testing.T) {
	t.Run("успешное подключение", func(t *testing.T) {
		mr := miniredis.RunT(t)
		host, portStr, _ := strings.Cut(mr.Addr(), ":")
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)

		rdb, err := ConnectRedis(config.RedisConfig{Host: host, Port: port})

		require.NoError(t, err)
		assert.NoError(t, rdb.Close())
	})

	t.Run("Redis недоступен", func(t *testing.T) {
		mr := miniredis.RunT(t)
		host, portStr, _ := strings.Cut(mr.Addr(), ":")
		port, _ := strconv.Atoi(portStr)
		mr.Close()

		_, err := ConnectRedis(config.RedisConfig{Host: host, Port: port})

		assert.Error(t, err)
	})
}
