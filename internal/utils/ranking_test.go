package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHotRank(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultRankConfig

	assert.Zero(t, cfg.HotRank(now, now, 0, 0, 0))
	assert.Zero(t, cfg.HotRank(now, now, -10, 0, 0), "negative engagement clamps to zero")

	fresh := cfg.HotRank(now.Add(-time.Hour), now, 10, 2, 100)
	stale := cfg.HotRank(now.Add(-48*time.Hour), now, 10, 2, 100)
	assert.Greater(t, fresh, stale, "older posts decay")

	more := cfg.HotRank(now.Add(-time.Hour), now, 50, 2, 100)
	assert.Greater(t, more, fresh)

	future := cfg.HotRank(now.Add(time.Hour), now, 10, 2, 100)
	assert.Equal(t, cfg.HotRank(now, now, 10, 2, 100), future, "clock skew treated as age zero")
}
