package tree

import "sync"

// Observer is called after an edit has been fully applied.
type Observer func(snapshot *Tree, cmd Command)

// Session guards the current snapshot of one tree. Readers always see a snapshot
// with every relation repair of the last edit already applied.
type Session struct {
	mu        sync.RWMutex
	current   *Tree
	observers map[int]Observer
	nextID    int
}

func NewSession(t *Tree) *Session {
	if t == nil {
		t = New(nil)
	}
	return &Session{current: t, observers: make(map[int]Observer)}
}

// Snapshot returns the current tree.
func (s *Session) Snapshot() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply runs cmd and swaps in the new snapshot. Observers run after the lock is
// released, in subscription order.
func (s *Session) Apply(cmd Command) (*Tree, error) {
	return s.ApplyAndCommit(cmd, nil)
}

// ApplyAndCommit is Apply with a commit step, such as storing the result, that
// runs before the new snapshot is swapped in. A failing commit leaves the
// session unchanged and notifies nobody.
func (s *Session) ApplyAndCommit(cmd Command, commit func(*Tree) error) (*Tree, error) {
	s.mu.Lock()
	next, err := s.current.Apply(cmd)
	if err == nil && commit != nil {
		err = commit(next)
	}
	if err != nil {
		cur := s.current
		s.mu.Unlock()
		return cur, err
	}
	s.current = next
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, o := range observers {
		o(next, cmd)
	}
	return next, nil
}

// Replace swaps in t wholesale, as a re-import does. Observers get a nil command.
func (s *Session) Replace(t *Tree) {
	s.mu.Lock()
	s.current = t
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, o := range observers {
		o(t, nil)
	}
}

// Subscribe registers o and returns a function that removes it.
func (s *Session) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Session) snapshotObservers() []Observer {
	out := make([]Observer, 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if o, ok := s.observers[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
