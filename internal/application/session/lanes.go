package session

import "sync"

// lanes runs jobs one after another per key, in submission order. Jobs for
// different keys run concurrently. A key's goroutine exits when its queue
// drains.
type lanes struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func newLanes() *lanes {
	return &lanes{queues: make(map[string][]func())}
}

// submit queues fn behind earlier jobs for key. It never blocks.
func (l *lanes) submit(key string, fn func()) {
	l.mu.Lock()
	q, busy := l.queues[key]
	l.queues[key] = append(q, fn)
	l.mu.Unlock()

	if !busy {
		go l.drain(key)
	}
}

func (l *lanes) drain(key string) {
	for {
		l.mu.Lock()
		q := l.queues[key]
		if len(q) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[key] = q[1:]
		l.mu.Unlock()

		fn()
	}
}
