package miniac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBundleGetStringFallback(t *testing.T) {
	b := NewBundle()
	assert.Equal(t, "default", b.GetString("missing", "default"))

	b.PutString("key", "value")
	assert.Equal(t, "value", b.GetString("key", "default"))
}

func TestBundleClone(t *testing.T) {
	b := NewBundle()
	b.PutString("a", "1")
	clone := b.Clone()
	clone.PutString("a", "2")
	assert.Equal(t, "1", b.GetString("a", ""))
	assert.Equal(t, "2", clone.GetString("a", ""))
}
