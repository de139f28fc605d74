package cart

import "sync"

// mutationQueue serializes mutations per product id. The empty id stands
// for the whole cart and excludes every per-product mutation.
type mutationQueue struct {
	all sync.RWMutex

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{locks: make(map[string]*keyLock)}
}

func (q *mutationQueue) acquire(id string) (release func()) {
	if id == "" {
		q.all.Lock()
		return q.all.Unlock
	}

	q.all.RLock()

	q.mu.Lock()
	l, ok := q.locks[id]
	if !ok {
		l = &keyLock{}
		q.locks[id] = l
	}
	l.refs++
	q.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		q.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(q.locks, id)
		}
		q.mu.Unlock()

		q.all.RUnlock()
	}
}
