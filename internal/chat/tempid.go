package chat

import (
	"strconv"
	"sync"
	"time"

	"studyroom/internal/models"
)

// TempIDs hands out strictly increasing "temp-<unix-nanos>" ids. Two sends in
// the same nanosecond still get distinct ids.
type TempIDs struct {
	mu   sync.Mutex
	last int64
}

func (g *TempIDs) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := now.UnixNano()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return models.TempIDPrefix + strconv.FormatInt(n, 10)
}
