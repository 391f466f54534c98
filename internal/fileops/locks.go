package fileops

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// Locks serialises mutations of the same absolute path within one process.
// Entries are reference counted and dropped when the last holder unlocks, so
// the table only holds names that are being worked on right now.
type Locks struct {
	m *xsync.Map[string, *nameLock]
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{m: xsync.NewMap[string, *nameLock]()}
}

// Lock acquires every name, in sorted order so two callers locking the same
// pair cannot deadlock. Duplicates are locked once. The returned func
// releases them all.
func (l *Locks) Lock(names ...string) (unlock func()) {
	keys := append([]string(nil), names...)
	sort.Strings(keys)
	uniq := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			uniq = append(uniq, k)
		}
	}

	held := make([]*nameLock, 0, len(uniq))
	for _, k := range uniq {
		nl, _ := l.m.Compute(k, func(old *nameLock, loaded bool) (*nameLock, xsync.ComputeOp) {
			if !loaded {
				old = &nameLock{}
			}
			old.refs++
			return old, xsync.UpdateOp
		})
		nl.mu.Lock()
		held = append(held, nl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(uniq[i])
		}
	}
}

func (l *Locks) release(k string) {
	l.m.Compute(k, func(old *nameLock, loaded bool) (*nameLock, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		old.refs--
		if old.refs <= 0 {
			return old, xsync.DeleteOp
		}
		return old, xsync.UpdateOp
	})
}

// Len reports how many names are currently held or waited on.
func (l *Locks) Len() int {
	return l.m.Size()
}
