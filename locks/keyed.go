package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
)

// ErrLockTimeout returned when a lock acquisition exceeded its bounded wait
var ErrLockTimeout = errors.New("lock acquisition timed out")

// KeyedLock per-session mutual exclusion. At most one holder per key at a
// time; independent keys never contend. Locks are process-local: even with a
// shared state backend, write traffic for one session must be served by one
// process.
type KeyedLock interface {
	// Acquire block until no other context holds the key, or until ctxt
	// ends. On ctxt expiry the error wraps ErrLockTimeout.
	Acquire(ctxt context.Context, key string) (*Guard, error)
}

// Guard releasable hold on one key. Release is idempotent so it can sit in a
// defer on every exit path of the guarded mutation.
type Guard struct {
	key    string
	parent *keyedLockImpl
	once   sync.Once
}

// Release make the key available to the next waiter
func (g *Guard) Release() {
	g.once.Do(func() {
		g.parent.release(g.key)
	})
}

// keyedLockImpl implements KeyedLock
type keyedLockImpl struct {
	common.Component
	lclMutex sync.Mutex
	entries  map[string]*lockEntry
}

// lockEntry one key's mutex token plus a refcount of holders and waiters,
// so idle entries can be removed from the table
type lockEntry struct {
	token chan struct{}
	refs  int
}

// GetKeyedLock define a new KeyedLock
func GetKeyedLock(instance string) (KeyedLock, error) {
	logTags := log.Fields{
		"module": "locks", "component": "keyed-lock", "instance": instance,
	}
	return &keyedLockImpl{
		Component: common.Component{LogTags: logTags},
		entries:   make(map[string]*lockEntry),
	}, nil
}

func (l *keyedLockImpl) getEntry(key string) *lockEntry {
	l.lclMutex.Lock()
	defer l.lclMutex.Unlock()
	theEntry, ok := l.entries[key]
	if !ok {
		theEntry = &lockEntry{token: make(chan struct{}, 1)}
		l.entries[key] = theEntry
	}
	theEntry.refs++
	return theEntry
}

func (l *keyedLockImpl) putEntry(key string) {
	l.lclMutex.Lock()
	defer l.lclMutex.Unlock()
	theEntry, ok := l.entries[key]
	if !ok {
		return
	}
	theEntry.refs--
	if theEntry.refs <= 0 {
		delete(l.entries, key)
	}
}

// Acquire block until no other context holds the key, or until ctxt ends
func (l *keyedLockImpl) Acquire(ctxt context.Context, key string) (*Guard, error) {
	theEntry := l.getEntry(key)
	select {
	case theEntry.token <- struct{}{}:
		log.WithFields(l.LogTags).Debugf("Acquired lock on %s", key)
		return &Guard{key: key, parent: l}, nil
	case <-ctxt.Done():
		l.putEntry(key)
		err := fmt.Errorf("waiting for lock on %s: %w", key, ErrLockTimeout)
		log.WithError(err).WithFields(l.LogTags).Errorf("Unable to lock %s", key)
		return nil, err
	}
}

// release drain the key's token and drop the holder's reference
func (l *keyedLockImpl) release(key string) {
	l.lclMutex.Lock()
	theEntry, ok := l.entries[key]
	l.lclMutex.Unlock()
	if !ok {
		return
	}
	<-theEntry.token
	l.putEntry(key)
	log.WithFields(l.LogTags).Debugf("Released lock on %s", key)
}
