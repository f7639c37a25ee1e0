package tree

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_NotifiesAfterApply(t *testing.T) {
	s := NewSession(family())

	var seen []string
	unsubscribe := s.Subscribe(func(snap *Tree, cmd Command) {
		// the snapshot handed to observers is already the current one
		assert.Same(t, snap, s.Snapshot())
		assertInvariants(t, snap)
		seen = append(seen, cmd.Name())
	})

	_, err := s.Apply(SetSpouse{PersonID: "dad", SpouseID: "ann"})
	require.NoError(t, err)

	_, err = s.Apply(SetSpouse{PersonID: "dad", SpouseID: "dad"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "ann", get(t, s.Snapshot(), "dad").Spouse)

	unsubscribe()
	_, err = s.Apply(DeletePerson{ID: "sam"})
	require.NoError(t, err)

	assert.Equal(t, []string{"set_spouse"}, seen)
}

func TestSession_ApplyAndCommit(t *testing.T) {
	s := NewSession(family())
	before := s.Snapshot()

	notified := 0
	s.Subscribe(func(*Tree, Command) { notified++ })

	var committed *Tree
	returned, err := s.ApplyAndCommit(DeletePerson{ID: "sam"}, func(next *Tree) error {
		committed = next
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")
	assert.Same(t, before, returned)
	assert.Same(t, before, s.Snapshot(), "failed commit keeps the old snapshot")
	assert.Equal(t, 0, notified)
	_, ok := committed.Person("sam")
	assert.False(t, ok, "commit sees the edited tree")

	next, err := s.ApplyAndCommit(AddPerson{Person: mk("", "Zoe", "F")}, func(next *Tree) error {
		committed = next
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, committed, next, "the committed snapshot is the one swapped in")
	assert.Same(t, next, s.Snapshot())
	assert.Equal(t, 1, notified)
}

func TestSession_Replace(t *testing.T) {
	s := NewSession(nil)
	assert.Equal(t, 0, s.Snapshot().Len())

	var got *Tree
	var gotCmd Command = AddPerson{}
	s.Subscribe(func(snap *Tree, cmd Command) { got, gotCmd = snap, cmd })

	tr := family()
	s.Replace(tr)
	assert.Same(t, tr, got)
	assert.Nil(t, gotCmd)
}

func TestSession_ConcurrentEdits(t *testing.T) {
	s := NewSession(family())

	var mu sync.Mutex
	notified := 0
	s.Subscribe(func(*Tree, Command) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Apply(AddPerson{Person: mk(fmt.Sprintf("p%d", i), "Person", "")})
			assert.NoError(t, err)
			_ = s.Snapshot().People()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, s.Snapshot().Len())
	assert.Equal(t, 20, notified)
	assertInvariants(t, s.Snapshot())
}

func TestSession_FailedCommitsRacingReplace(t *testing.T) {
	first, second := family(), New(nil)
	s := NewSession(first)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			got, err := s.ApplyAndCommit(DeletePerson{ID: "sam"}, func(*Tree) error {
				return errors.New("disk full")
			})
			assert.Error(t, err)
			assert.True(t, got == first || got == second, "a failed commit returns a snapshot the session held")
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Replace(second)
			} else {
				s.Replace(first)
			}
		}(i)
	}
	wg.Wait()
}
