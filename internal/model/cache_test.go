package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachedEntryFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	e := CachedEntry[string]{Value: "v", CapturedAt: now, TTL: time.Minute}

	assert.True(t, e.Fresh(now))
	assert.True(t, e.Fresh(now.Add(59*time.Second)))
	assert.False(t, e.Fresh(now.Add(time.Minute)))
	assert.False(t, e.Fresh(now.Add(2*time.Minute)))
}
