package grading

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/autograde/internal/model"
)

// DefaultTTL is how long a cached grade stays valid.
const DefaultTTL = time.Hour

// Cache memoizes grading results by fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (model.GradeResult, bool, error)
	Set(ctx context.Context, key string, r model.GradeResult, ttl time.Duration) error
}

// Fingerprint derives a cache key from the question id and the full answer text.
func Fingerprint(questionID int64, answer string) string {
	h, _ := blake2b.New256(nil)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(questionID))
	h.Write(id[:])
	h.Write([]byte(answer))
	return "grade:" + strconv.FormatInt(questionID, 10) + ":" + hex.EncodeToString(h.Sum(nil))
}

type memoryEntry struct {
	result  model.GradeResult
	expires time.Time
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (model.GradeResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return model.GradeResult{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return model.GradeResult{}, false, nil
	}
	return cloneResult(e.result), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, r model.GradeResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: cloneResult(r), expires: c.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cloneResult copies the reference fields so callers cannot mutate cached state.
func cloneResult(r model.GradeResult) model.GradeResult {
	if es := r.Metadata.EssaySignals; es != nil {
		c := *es
		if c.KeywordsFound != nil {
			c.KeywordsFound = append([]string{}, c.KeywordsFound...)
		}
		r.Metadata.EssaySignals = &c
	}
	if r.Metadata.IsCorrect != nil {
		v := *r.Metadata.IsCorrect
		r.Metadata.IsCorrect = &v
	}
	return r
}
