package workers

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/camden-git/familytree/metrics"
	"github.com/camden-git/familytree/realtime"
	"github.com/camden-git/familytree/repository"
)

// TaskType constants
const (
	TaskReindex = "reindex"
	TaskExport  = "export"
)

type TreeJob struct {
	TreeID   uint
	TaskType string
}

func (j TreeJob) pendingKey() string {
	return fmt.Sprintf("%d:%s", j.TreeID, j.TaskType)
}

// TreeTasks is the work the processor delegates to the tree service.
type TreeTasks interface {
	Reindex(treeID uint) (int, error)
	WriteExport(treeID uint) (string, error)
}

type TreeProcessor struct {
	JobQueue chan TreeJob
	Tasks    TreeTasks
	Store    repository.TreeStore
	Hub      realtime.Broadcaster
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]bool
	Mutex    sync.Mutex
	stopOnce sync.Once
}

func NewTreeProcessor(tasks TreeTasks, store repository.TreeStore, hub realtime.Broadcaster, queueSize, numWorkers int) *TreeProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &TreeProcessor{
		JobQueue: make(chan TreeJob, queueSize),
		Tasks:    tasks,
		Store:    store,
		Hub:      hub,
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	zap.S().Infof("Started %d tree worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

// worker processes jobs from the queue
func (tp *TreeProcessor) worker(id int) {
	defer tp.Wg.Done()

	zap.S().Debugf("Tree worker %d started", id)
	for {
		select {
		case job, ok := <-tp.JobQueue:
			if !ok {
				zap.S().Debugf("Tree worker %d stopping: Job queue closed", id)
				return
			}
			zap.S().Debugf("Worker %d: Received job type '%s' for tree %d", id, job.TaskType, job.TreeID)

			switch job.TaskType {
			case TaskReindex:
				tp.processReindexTask(job)
			case TaskExport:
				tp.processExportTask(job)
			default:
				zap.S().Errorf("Worker %d: unknown task type '%s' for tree %d", id, job.TaskType, job.TreeID)
				metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "unknown").Inc()
			}

			tp.Mutex.Lock()
			delete(tp.Pending, job.pendingKey())
			tp.Mutex.Unlock()

		case <-tp.StopChan:
			zap.S().Debugf("Tree worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// processReindexTask rebuilds the person index of a tree from its stored GEDCOM
func (tp *TreeProcessor) processReindexTask(job TreeJob) {
	n, err := tp.Tasks.Reindex(job.TreeID)
	if err != nil {
		zap.S().Errorf("Worker: reindex of tree %d failed: %v", job.TreeID, err)
		metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "error").Inc()
		return
	}
	zap.S().Infof("Worker: Reindexed tree %d (%d people)", job.TreeID, n)
	metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "ok").Inc()
}

// processExportTask stores the tree's GEDCOM as an export file and records the result
func (tp *TreeProcessor) processExportTask(job TreeJob) {
	if err := tp.Store.MarkExportProcessing(job.TreeID); err != nil {
		zap.S().Errorf("Worker: marking export processing for tree %d failed: %v. Skipping job.", job.TreeID, err)
		metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "error").Inc()
		return
	}

	var pathPtr *string
	name, taskErr := tp.Tasks.WriteExport(job.TreeID)
	if taskErr != nil {
		zap.S().Errorf("Worker: export of tree %d failed: %v", job.TreeID, taskErr)
	} else {
		pathPtr = &name
		zap.S().Infof("Worker: Exported tree %d to %s", job.TreeID, name)
	}

	if dbErr := tp.Store.SetExportResult(job.TreeID, pathPtr, taskErr); dbErr != nil {
		zap.S().Errorf("Worker: updating export result for tree %d failed: %v", job.TreeID, dbErr)
	}

	ev := realtime.Event{Type: realtime.EventExportReady, TreeID: job.TreeID, Task: TaskExport}
	if taskErr != nil {
		ev.Status = "error"
		ev.Error = taskErr.Error()
		metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "error").Inc()
	} else {
		ev.Status = "done"
		ev.Extra = map[string]interface{}{"path": name}
		metrics.WorkerJobsTotal.WithLabelValues(job.TaskType, "ok").Inc()
	}
	if tp.Hub != nil {
		tp.Hub.Broadcast(ev)
	}
}

// QueueJob queues a specific task if not already pending
func (tp *TreeProcessor) QueueJob(job TreeJob) bool {
	// use composite key: "treeID:taskType"
	pendingKey := job.pendingKey()

	tp.Mutex.Lock()
	if tp.Pending[pendingKey] {
		tp.Mutex.Unlock()
		return false
	}

	tp.Pending[pendingKey] = true
	tp.Mutex.Unlock()

	select {
	case tp.JobQueue <- job:
		zap.S().Debugf("Queued task '%s' for tree %d", job.TaskType, job.TreeID)
		return true
	default:
		zap.S().Warnf("Tree job queue full. Failed to queue task '%s' for tree %d", job.TaskType, job.TreeID)
		tp.Mutex.Lock()
		delete(tp.Pending, pendingKey)
		tp.Mutex.Unlock()
		return false
	}
}

// IsPending reports whether job is queued or running.
func (tp *TreeProcessor) IsPending(job TreeJob) bool {
	tp.Mutex.Lock()
	defer tp.Mutex.Unlock()
	return tp.Pending[job.pendingKey()]
}

// QueueReindexAll queues a reindex for every stored tree, as done at boot.
func (tp *TreeProcessor) QueueReindexAll() (int, error) {
	trees, err := tp.Store.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list trees for reindex: %w", err)
	}
	queued := 0
	for _, t := range trees {
		if tp.QueueJob(TreeJob{TreeID: t.ID, TaskType: TaskReindex}) {
			queued++
		}
	}
	return queued, nil
}

func (tp *TreeProcessor) Stop() {
	tp.stopOnce.Do(func() {
		zap.S().Info("Stopping tree workers...")
		close(tp.StopChan)
		tp.Wg.Wait()
		zap.S().Info("All tree workers stopped")
	})
}
