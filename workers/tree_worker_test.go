package workers

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/familytree/database"
	"github.com/camden-git/familytree/models"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/repository"
)

type fakeTasks struct {
	mu        sync.Mutex
	reindexed []uint
	exportErr error
	block     chan struct{}
}

func (f *fakeTasks) Reindex(treeID uint) (int, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexed = append(f.reindexed, treeID)
	return 3, nil
}

func (f *fakeTasks) WriteExport(treeID uint) (string, error) {
	if f.exportErr != nil {
		return "", f.exportErr
	}
	return "tree-export.ged", nil
}

func (f *fakeTasks) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reindexed)
}

type hubStub struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (h *hubStub) Broadcast(ev realtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *hubStub) all() []realtime.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]realtime.Event(nil), h.events...)
}

func newProcessor(t *testing.T, tasks *fakeTasks, queueSize int) (*TreeProcessor, *repository.MemoryStore, *hubStub) {
	t.Helper()
	store := repository.NewMemoryStore()
	hub := &hubStub{}
	proc := NewTreeProcessor(tasks, store, hub, queueSize, 1)
	t.Cleanup(proc.Stop)
	return proc, store, hub
}

func TestTreeProcessor_ReindexAll(t *testing.T) {
	tasks := &fakeTasks{}
	proc, store, _ := newProcessor(t, tasks, 10)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(&models.Tree{Name: name}))
	}

	n, err := proc.QueueReindexAll()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Eventually(t, func() bool { return tasks.count() == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestTreeProcessor_DedupesPendingJobs(t *testing.T) {
	tasks := &fakeTasks{block: make(chan struct{})}
	proc, _, _ := newProcessor(t, tasks, 10)

	assert.True(t, proc.QueueJob(TreeJob{TreeID: 1, TaskType: TaskReindex}))
	assert.True(t, proc.IsPending(TreeJob{TreeID: 1, TaskType: TaskReindex}))
	assert.False(t, proc.IsPending(TreeJob{TreeID: 1, TaskType: TaskExport}))
	assert.False(t, proc.QueueJob(TreeJob{TreeID: 1, TaskType: TaskReindex}), "same tree and task is pending")
	assert.True(t, proc.QueueJob(TreeJob{TreeID: 1, TaskType: TaskExport}))
	assert.True(t, proc.QueueJob(TreeJob{TreeID: 2, TaskType: TaskReindex}))

	close(tasks.block)
	require.Eventually(t, func() bool { return tasks.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return proc.QueueJob(TreeJob{TreeID: 1, TaskType: TaskReindex})
	}, 2*time.Second, 5*time.Millisecond, "finished jobs can be queued again")
}

func TestTreeProcessor_QueueFull(t *testing.T) {
	tasks := &fakeTasks{block: make(chan struct{})}
	defer close(tasks.block)
	proc, _, _ := newProcessor(t, tasks, 1)

	require.True(t, proc.QueueJob(TreeJob{TreeID: 1, TaskType: TaskReindex}))
	// wait until the worker holds job 1 so the queue slot is free
	require.Eventually(t, func() bool { return len(proc.JobQueue) == 0 }, 2*time.Second, time.Millisecond)
	require.True(t, proc.QueueJob(TreeJob{TreeID: 2, TaskType: TaskReindex}))
	assert.False(t, proc.QueueJob(TreeJob{TreeID: 3, TaskType: TaskReindex}))

	proc.Mutex.Lock()
	assert.False(t, proc.Pending["3:reindex"], "rejected job is not left pending")
	proc.Mutex.Unlock()
}

func TestTreeProcessor_Export(t *testing.T) {
	tasks := &fakeTasks{}
	proc, store, hub := newProcessor(t, tasks, 10)
	tr := &models.Tree{Name: "a"}
	require.NoError(t, store.Create(tr))
	require.NoError(t, store.RequestExport(tr.ID))

	require.True(t, proc.QueueJob(TreeJob{TreeID: tr.ID, TaskType: TaskExport}))
	require.Eventually(t, func() bool { return len(hub.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	ev := hub.all()[0]
	assert.Equal(t, realtime.EventExportReady, ev.Type)
	assert.Equal(t, "done", ev.Status)
	assert.Equal(t, "tree-export.ged", ev.Extra["path"])

	got, err := store.GetByID(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusDone, got.ExportStatus)
	require.NotNil(t, got.ExportPath)
	assert.Equal(t, "tree-export.ged", *got.ExportPath)
}

func TestTreeProcessor_ExportFailure(t *testing.T) {
	tasks := &fakeTasks{exportErr: errors.New("read-only file system")}
	proc, store, hub := newProcessor(t, tasks, 10)
	tr := &models.Tree{Name: "a"}
	require.NoError(t, store.Create(tr))

	require.True(t, proc.QueueJob(TreeJob{TreeID: tr.ID, TaskType: TaskExport}))
	require.Eventually(t, func() bool { return len(hub.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "error", hub.all()[0].Status)

	got, err := store.GetByID(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusError, got.ExportStatus)
	require.NotNil(t, got.ExportError)
	assert.Equal(t, "read-only file system", *got.ExportError)
}

func TestTreeProcessor_ExportUnknownTree(t *testing.T) {
	tasks := &fakeTasks{}
	proc, _, hub := newProcessor(t, tasks, 10)

	require.True(t, proc.QueueJob(TreeJob{TreeID: 42, TaskType: TaskExport}))
	require.Eventually(t, func() bool {
		return proc.QueueJob(TreeJob{TreeID: 42, TaskType: TaskExport})
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.all(), "skipped jobs broadcast nothing")
}
