package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/KarpelesLab/remoteplay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewManagerKeepsTransport(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Download.Timeout = "30s"
	cfg.Download.MaxStreams = 2

	dm := newManager(cfg, zap.NewNop().Sugar())
	require.NotNil(t, dm.Client)
	assert.Equal(t, 30*time.Second, dm.Client.Timeout)
	assert.Equal(t, 2, dm.MaxStreamsPerTask)

	tr, ok := dm.Client.Transport.(*http.Transport)
	require.True(t, ok, "client lost its transport")
	assert.True(t, tr.DisableCompression)
	assert.Equal(t, 15*time.Second, tr.ResponseHeaderTimeout)
}
