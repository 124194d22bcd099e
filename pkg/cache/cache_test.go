package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCacheMiss(t *testing.T) {
	assert.True(t, IsCacheMiss(ErrCacheMiss{Key: "k"}))
	assert.True(t, IsCacheMiss(fmt.Errorf("lookup: %w", ErrCacheMiss{Key: "k"})))
	assert.False(t, IsCacheMiss(errors.New("other")))
	assert.False(t, IsCacheMiss(nil))
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()
	assert.Equal(t, "restdecl:", config.Prefix)
	assert.Positive(t, config.DefaultTTL)
}
