package service

import (
	"math/rand"
	"sync"
	"time"
)

// DrawEngine picks lottery winners uniformly at random without
// replacement. Selection is a uniform random sample: ties have no
// inherent ordering and no entrant attribute influences the odds.
type DrawEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDrawEngine constructs an engine. A non-zero seed makes every draw
// sequence reproducible; seed 0 seeds from the clock.
func NewDrawEngine(seed int64) *DrawEngine {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DrawEngine{rng: rand.New(rand.NewSource(seed))}
}

// Pick draws n distinct members from pool. When the whole pool fits
// under n there is nothing to randomise and the pool is returned as is.
func (e *DrawEngine) Pick(pool []string, n int) []string {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if len(pool) <= n {
		return append([]string(nil), pool...)
	}

	// Partial Fisher-Yates: shuffle only the first n positions.
	shuffled := append([]string(nil), pool...)
	e.mu.Lock()
	for i := 0; i < n; i++ {
		j := i + e.rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	e.mu.Unlock()
	return shuffled[:n]
}
