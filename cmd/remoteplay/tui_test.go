package main

import (
	"testing"
	"time"

	"github.com/KarpelesLab/remoteplay/playback"
	"github.com/stretchr/testify/assert"
)

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "--:--", formatStatus(playback.Status{}))
	assert.Equal(t, "01:05 / 03:00", formatStatus(playback.Status{
		Position:    65 * time.Second,
		HasPosition: true,
		Duration:    3 * time.Minute,
		HasDuration: true,
	}))
	assert.Equal(t, "1:02:03", formatDuration(time.Hour+2*time.Minute+3*time.Second))
}
