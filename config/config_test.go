package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.True(t, cfg.IsLeader())
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 64, cfg.Replication.BatchMaxCount)
	require.Equal(t, 8, cfg.Email.MaxAttempts)
}

func TestIsLeader(t *testing.T) {
	var cfg Config
	require.True(t, cfg.IsLeader())
	cfg.Replication.Source = "http://leader:8080"
	require.False(t, cfg.IsLeader())
}
