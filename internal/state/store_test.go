package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutTake(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Minute)

	tok := s.Put(Flash{Level: LevelSuccess, Text: "sent"})
	assert.NotEmpty(t, tok)

	f, ok := s.Take(tok)
	assert.True(t, ok)
	assert.Equal(t, "sent", f.Text)
	assert.Equal(t, LevelSuccess, f.Level)

	// второй раз не показывается
	_, ok = s.Take(tok)
	assert.False(t, ok)

	_, ok = s.Take("unknown")
	assert.False(t, ok)
}

func TestExpiryAndGC(t *testing.T) {
	t.Parallel()
	s := NewStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	expired := s.Put(Flash{Text: "old"})
	now = now.Add(2 * time.Minute)
	fresh := s.Put(Flash{Text: "new"})
	assert.NotEqual(t, expired, fresh)

	s.gc()
	assert.Equal(t, 1, s.count())

	_, ok := s.Take(expired)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Take(fresh)
	assert.False(t, ok)
	assert.Equal(t, 0, s.count())
}
