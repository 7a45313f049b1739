package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDv7 generates a new UUID v7
func GenerateUUIDv7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails (highly unlikely)
		return uuid.New()
	}
	return id
}

// SequenceGenerator produces monotonic order numbers such as settlement
// numbers. State is scoped to the generator instance, not the package,
// and guarded by a mutex so concurrent callers never observe the same
// (timestamp, sequence) pair.
type SequenceGenerator struct {
	mu       sync.Mutex
	prefix   string
	lastUnix int64
	seq      int64
	now      func() time.Time
}

// NewSequenceGenerator creates a generator whose numbers start with prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{
		prefix: prefix,
		now:    time.Now,
	}
}

// Next returns the next number: <prefix><yyyymmddhhmmss><seq:04d>.
func (g *SequenceGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	unix := now.Unix()
	if unix == g.lastUnix {
		g.seq++
	} else {
		g.lastUnix = unix
		g.seq = 0
	}

	return fmt.Sprintf("%s%s%04d", g.prefix, now.Format("20060102150405"), g.seq)
}
