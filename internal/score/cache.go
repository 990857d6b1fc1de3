package score

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// CompileCache memoizes compiled scores by score fingerprint so that a queue
// played repeatedly during a timelapse is compiled once.
type CompileCache struct {
	compiler Compiler
	cache    *cache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCompileCache returns a cache for compiler c. Entries expire after ttl;
// a cleanup interval of zero disables the background janitor.
func NewCompileCache(c Compiler, ttl, cleanup time.Duration) *CompileCache {
	return &CompileCache{compiler: c, cache: cache.New(ttl, cleanup)}
}

// Compiler returns the compiler used on cache misses.
func (cc *CompileCache) Compiler() Compiler { return cc.compiler }

// Get returns the compiled form of s, compiling it on a miss. The result is
// shared and must not be modified.
func (cc *CompileCache) Get(s *Score) (*CompiledScore, error) {
	key := strconv.FormatUint(s.Fingerprint(), 16)
	if v, ok := cc.cache.Get(key); ok {
		cc.hits.Add(1)
		return v.(*CompiledScore), nil
	}
	cc.misses.Add(1)

	cs, err := cc.compiler.CompileScore(s)
	if err != nil {
		return nil, err
	}
	cc.cache.SetDefault(key, cs)
	return cs, nil
}

// Hits returns the number of cache hits.
func (cc *CompileCache) Hits() int64 { return cc.hits.Load() }

// Misses returns the number of compilations.
func (cc *CompileCache) Misses() int64 { return cc.misses.Load() }

// Len returns the number of cached scores.
func (cc *CompileCache) Len() int { return cc.cache.ItemCount() }

// Flush drops every cached score.
func (cc *CompileCache) Flush() { cc.cache.Flush() }
