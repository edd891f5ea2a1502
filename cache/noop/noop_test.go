package noop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oneyeking31/local-explorer/models"
)

func TestNoOpCache_AlwaysMisses(t *testing.T) {
	c := NewNoOpCache()

	for _, key := range []string{"weather:1,2", "", "places:48.85,2.35:1500:museum:"} {
		c.Set(key, []byte("v"), models.CacheTypePermanent.TTL())

		entry, found := c.Get(key)
		assert.False(t, found)
		assert.Nil(t, entry)

		entry, found = c.GetStale(key)
		assert.False(t, found)
		assert.Nil(t, entry)

		assert.Equal(t, models.CacheLevelMiss, c.GetWithLevel(key).Level)
		assert.False(t, c.GetStaleWithLevel(key).Found)

		c.Delete(key)
	}
}
