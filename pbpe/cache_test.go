package pbpe

import (
	"fmt"
	"sync"
	"testing"
)

func TestEncodeCacheEviction(t *testing.T) {
	c := newEncodeCache(cacheShardCount) // one slot per shard
	keys := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		key := fmt.Sprintf("word-%d", i)
		keys = append(keys, key)
		c.add(key, []Token{{ID: uint32(i)}})
	}
	// Each shard holds at most one entry.
	held := 0
	for _, key := range keys {
		if _, ok := c.get(key); ok {
			held++
		}
	}
	if held == 0 || held > cacheShardCount {
		t.Fatalf("expected between 1 and %d live entries, got %d", cacheShardCount, held)
	}
}

func TestEncodeCacheConcurrent(t *testing.T) {
	c := newEncodeCache(1024)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("w%d", j%50)
				c.add(key, []Token{{ID: uint32(j % 50)}})
				if toks, ok := c.get(key); ok && toks[0].ID != uint32(j%50) {
					t.Errorf("cache returned wrong value for %s", key)
				}
			}
		}(i)
	}
	wg.Wait()

	c.clear()
	if _, ok := c.get("w0"); ok {
		t.Fatalf("expected cleared cache to miss")
	}
}
