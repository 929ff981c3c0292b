package events

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// versionLog remembers the newest activation version applied per publishing
// instance. The oldest instances are forgotten once size is exceeded.
type versionLog struct {
	mu   sync.Mutex
	last *lru.Cache[string, uint64]
}

func newVersionLog(size int) *versionLog {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, uint64](size)
	return &versionLog{last: c}
}

// advance records v for instance and reports whether it is newer than
// anything seen from that instance before.
func (l *versionLog) advance(instance string, v uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok, _ := l.last.PeekOrAdd(instance, v)
	if !ok {
		return true
	}
	if v <= prev {
		return false
	}
	l.last.Add(instance, v)
	return true
}
