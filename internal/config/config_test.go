package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)

	req.Equal(":8080", cfg.Addr)
	req.Equal(50, cfg.HistorySize)
	req.Equal(10000, cfg.ReceiptCapacity)
	req.Equal(10*time.Minute, cfg.OfflineRetention)
	req.Equal(1_000_000, cfg.MaxImageChars)
	req.Equal("relay:room:", cfg.RedisChannelPrefix)
	req.Empty(cfg.RedisAddr)
	req.Nil(cfg.Words())
}

func TestLoad_FromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("ADDR", ":9090")
	t.Setenv("HISTORY_SIZE", "20")
	t.Setenv("OFFLINE_RETENTION", "30s")
	t.Setenv("CENSORED_WORDS", "badger,snake")
	t.Setenv("CENSOR_CHAR", "#")

	cfg, err := Load()
	req.NoError(err)

	req.Equal(":9090", cfg.Addr)
	req.Equal(20, cfg.HistorySize)
	req.Equal(30*time.Second, cfg.OfflineRetention)
	req.Equal([]string{"badger", "snake"}, cfg.Words())

	r, err := cfg.CensorRune()
	req.NoError(err)
	req.Equal('#', r)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("HISTORY_SIZE", "0")
	t.Setenv("CENSOR_CHAR", "**")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "HISTORY_SIZE")
	require.Contains(t, err.Error(), "CENSOR_CHAR")
}
