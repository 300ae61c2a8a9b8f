package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("decision", 2, 0))
	assert.True(t, l.Allow("decision", 2, 0))
	assert.False(t, l.Allow("decision", 2, 0))

	// Independent key has its own bucket.
	assert.True(t, l.Allow("other", 1, 0))
}

func TestAllowRefills(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("decision", 1, 50))
	assert.False(t, l.Allow("decision", 1, 50))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, l.Allow("decision", 1, 50))
}
