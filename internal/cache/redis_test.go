package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisCache_RequiresURL(t *testing.T) {
	_, err := NewRedisCache(RedisOptions{})
	assert.Error(t, err)
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(RedisOptions{URL: "not-a-redis-url"})
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `products|`, escapeGlob("products|"))
	assert.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))
}
