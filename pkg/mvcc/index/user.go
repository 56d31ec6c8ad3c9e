package index

import "github.com/docstore/engine/pkg/mvcc"

// User is the Close()-based stand-in for the original's IndexUser: a
// scope guard that takes a collection's index read lock for the
// duration of an operation and releases it on every exit path,
// matching the "exception-driven rollback -> explicit scope guard"
// redesign note. Index structure writers (Insert/Remove/Forget/
// PreCommit) take each index's own write lock directly instead; User
// only guards read-side access to an index's structure while a
// transaction inspects it (e.g. a lookup walking a skiplist range).
type User struct {
	idx    mvcc.Index
	closed bool
}

// NewUser takes idx's read lock and returns a guard. The caller must
// Close it exactly once, typically via defer.
func NewUser(idx mvcc.Index) *User {
	idx.RLock()
	return &User{idx: idx}
}

// Close releases the read lock. Safe to call more than once.
func (u *User) Close() {
	if u.closed {
		return
	}
	u.closed = true
	u.idx.RUnlock()
}
