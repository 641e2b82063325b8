package pool

// WorkerStatus enumerates execution slot states.
type WorkerStatus string

const (
	WorkerIdle  WorkerStatus = "idle"
	WorkerBusy  WorkerStatus = "busy"
	WorkerError WorkerStatus = "error"
)

// Worker is one execution slot. Workers are created with the pool and reused
// for its whole lifetime; only the pool mutates them.
type Worker struct {
	ID     int
	Status WorkerStatus
	// TaskID is the submission id of the bound task, zero when idle.
	TaskID    uint64
	Completed int
	Failed    int
	LastError string
}

func (w *Worker) bind(taskID uint64) {
	w.Status = WorkerBusy
	w.TaskID = taskID
}

// fail records a task failure. The error status lasts only until free is
// called for the same completion.
func (w *Worker) fail(err error) {
	w.Status = WorkerError
	w.Failed++
	w.LastError = err.Error()
}

// free returns the worker to idle so it can take the next queued task.
func (w *Worker) free(failed bool) {
	if !failed {
		w.Completed++
	}
	w.Status = WorkerIdle
	w.TaskID = 0
}
