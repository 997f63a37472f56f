package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	out := Table([]string{"metric", "value"}, [][]string{
		{"hits", "10"},
		{"misses", "2"},
	})
	assert.Contains(t, out, "metric")
	assert.Contains(t, out, "hits")
	assert.Contains(t, out, "10")
	assert.Contains(t, out, "misses")
}

func TestMessages(t *testing.T) {
	assert.Contains(t, Success("stored %d keys", 3), "stored 3 keys")
	assert.Contains(t, Warning("dropped %s", "k"), "dropped k")
}
