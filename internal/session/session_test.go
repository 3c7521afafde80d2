package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var when = time.Date(2026, 10, 18, 9, 5, 3, 0, time.UTC)

func TestName(t *testing.T) {
	assert.Equal(t, "Recording_20261018_090503", Name("Recording", when, nil))
}

func TestName_Collision(t *testing.T) {
	taken := map[string]bool{
		"Take_20261018_090503":   true,
		"Take_20261018_090503_2": true,
	}
	exists := func(n string) bool { return taken[n] }

	assert.Equal(t, "Take_20261018_090503_3", Name("Take", when, exists))
}

func TestName_SortsByTime(t *testing.T) {
	earlier := Name("A", when, nil)
	later := Name("A", when.Add(time.Second), nil)
	assert.Less(t, earlier, later)
}

func TestSanitizePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", DefaultPrefix},
		{"   ", DefaultPrefix},
		{"My Take", "My_Take"},
		{"a/b\\c:d", "a_b_c_d"},
		{"..hidden", "__hidden"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizePrefix(tt.in), "input %q", tt.in)
	}
}

func TestContext(t *testing.T) {
	c := NewContext()
	assert.Empty(t, c.ID())
	assert.Nil(t, c.LogAttrs())

	c.Begin("Take_1", "recording", when)
	assert.Equal(t, "Take_1", c.ID())
	assert.Equal(t, when, c.StartedAt())
	attrs := c.LogAttrs()
	if assert.Len(t, attrs, 2) {
		assert.Equal(t, "Take_1", attrs[0].Value.String())
		assert.Equal(t, "recording", attrs[1].Value.String())
	}

	c.End()
	assert.Empty(t, c.ID())
}

func TestContext_ConcurrentAccess(t *testing.T) {
	c := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Begin("s", "playing", when)
		}()
		go func() {
			defer wg.Done()
			_ = c.LogAttrs()
		}()
	}
	wg.Wait()
	assert.Equal(t, "s", c.ID())
}
