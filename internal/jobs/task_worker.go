// task_worker.go implements the TaskWorker background job, which drains the
// Redis task queue, processes each task and upserts the outcome into
// task_results.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MURUGANQA/auth-service/internal/db/models"
	"github.com/MURUGANQA/auth-service/internal/domain"
	"github.com/MURUGANQA/auth-service/internal/queue"
	"github.com/MURUGANQA/auth-service/internal/safego"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// Worker states, exported through the worker_state gauge.
const (
	StateIdle    = "idle"
	StateDequeue = "dequeue"
	StateProcess = "process"
	StatePersist = "persist"
	StateBackoff = "backoff"
)

var allStates = []string{StateIdle, StateDequeue, StateProcess, StatePersist, StateBackoff}

// worker_tasks_total outcomes
const (
	outcomeProcessed    = "processed"
	outcomeMalformed    = "malformed"
	outcomeDeadLettered = "dead_lettered"
	outcomeFailed       = "failed"
)

// TaskSource is the queue the worker consumes.
type TaskSource interface {
	Pop(ctx context.Context) ([]byte, bool, error)
	BPop(ctx context.Context, timeout time.Duration) ([]byte, bool, error)
	Key() string
}

// TaskSink receives payloads the worker will not process (dead letters).
type TaskSink interface {
	Push(ctx context.Context, payload []byte) error
}

// ResultStore persists task outcomes keyed by task identity.
type ResultStore interface {
	Upsert(ctx context.Context, result *models.TaskResult) error
}

// Processor turns a task into its response string.
type Processor func(ctx context.Context, task queue.Task) (string, error)

// DefaultProcessor echoes the task back with a "Processed: " prefix.
func DefaultProcessor(_ context.Context, task queue.Task) (string, error) {
	return "Processed: " + task.Task, nil
}

// TaskWorkerConfig tunes the loop. Zero values select the defaults.
type TaskWorkerConfig struct {
	PollInterval    time.Duration
	BackoffInterval time.Duration
	BlockingPop     bool
}

// TaskWorker runs IDLE → DEQUEUE → PROCESS → PERSIST → IDLE until stopped.
// Queue or store connectivity failures move it to BACKOFF; nothing short of
// cancellation ends the loop.
type TaskWorker struct {
	source     TaskSource
	deadLetter TaskSink
	results    ResultStore
	process    Processor

	pollInterval    time.Duration
	backoffInterval time.Duration
	blockingPop     bool

	stopChan chan struct{}
	stopOnce sync.Once
	state    string
	sleep    func(ctx context.Context, d time.Duration) bool
}

// NewTaskWorker creates a worker. deadLetter may be nil, in which case
// malformed payloads are dropped after logging. A nil processor selects
// DefaultProcessor.
func NewTaskWorker(source TaskSource, deadLetter TaskSink, results ResultStore, process Processor, cfg TaskWorkerConfig) *TaskWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BackoffInterval <= 0 {
		cfg.BackoffInterval = 5 * time.Second
	}
	if process == nil {
		process = DefaultProcessor
	}

	w := &TaskWorker{
		source:          source,
		deadLetter:      deadLetter,
		results:         results,
		process:         process,
		pollInterval:    cfg.PollInterval,
		backoffInterval: cfg.BackoffInterval,
		blockingPop:     cfg.BlockingPop,
		stopChan:        make(chan struct{}),
	}
	w.sleep = w.wait
	return w
}

// Start runs the loop until ctx is cancelled or Stop is called.
func (w *TaskWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("task worker started",
		"queue", w.source.Key(),
		"poll_interval", w.pollInterval,
		"backoff_interval", w.backoffInterval,
		"blocking_pop", w.blockingPop)

	for ctx.Err() == nil {
		w.cycle(ctx)
	}

	w.setState(StateIdle)
	slog.Info("task worker stopped")
}

// Stop ends the loop. Safe to call more than once.
func (w *TaskWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// cycle runs one pass of the state machine.
func (w *TaskWorker) cycle(ctx context.Context) {
	w.setState(StateIdle)

	w.setState(StateDequeue)
	payload, ok, err := w.dequeue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.backoff(ctx, "dequeue", err)
		return
	}
	if !ok {
		// BLPOP already waited out the poll interval
		if !w.blockingPop {
			w.sleep(ctx, w.pollInterval)
		}
		return
	}

	w.setState(StateProcess)
	task, err := queue.DecodeTask(payload)
	if err != nil {
		w.reject(ctx, payload, err)
		return
	}
	response, err := safego.Call("task_processor", func() (string, error) {
		return w.process(ctx, task)
	})
	if err != nil {
		telemetry.WorkerTasksTotal.WithLabelValues(outcomeFailed).Inc()
		slog.Error("task processing failed", "task_id", task.Identity(), "error", err)
		return
	}

	w.setState(StatePersist)
	w.persist(ctx, &models.TaskResult{
		TaskID:   task.Identity(),
		Task:     task.Task,
		Response: response,
		Status:   models.TaskStatusSubmitted,
	})
}

func (w *TaskWorker) dequeue(ctx context.Context) ([]byte, bool, error) {
	if w.blockingPop {
		return w.source.BPop(ctx, w.pollInterval)
	}
	return w.source.Pop(ctx)
}

// persist retries the upsert through BACKOFF until it lands, the error turns
// out to be permanent, or the worker is stopped. The task has already left
// the queue, so giving up on a transient error would lose it.
func (w *TaskWorker) persist(ctx context.Context, result *models.TaskResult) {
	for {
		err := w.results.Upsert(ctx, result)
		if err == nil {
			telemetry.WorkerTasksTotal.WithLabelValues(outcomeProcessed).Inc()
			slog.Debug("task persisted", "task_id", result.TaskID, "attempts", result.Attempts)
			return
		}
		if ctx.Err() != nil {
			slog.Warn("task worker stopped before result was persisted", "task_id", result.TaskID)
			return
		}
		if !domain.IsRetryable(err) {
			telemetry.WorkerTasksTotal.WithLabelValues(outcomeFailed).Inc()
			slog.Error("task result rejected by store", "task_id", result.TaskID, "error", err)
			return
		}
		if !w.backoff(ctx, "persist", err) {
			return
		}
		w.setState(StatePersist)
	}
}

// reject handles a payload that cannot be decoded. It is never retried.
func (w *TaskWorker) reject(ctx context.Context, payload []byte, cause error) {
	if w.deadLetter == nil {
		telemetry.WorkerTasksTotal.WithLabelValues(outcomeMalformed).Inc()
		slog.Warn("dropping malformed task", "error", cause, "bytes", len(payload))
		return
	}
	if err := w.deadLetter.Push(ctx, payload); err != nil {
		// the payload is malformed either way; losing it is acceptable
		telemetry.WorkerTasksTotal.WithLabelValues(outcomeMalformed).Inc()
		slog.Error("failed to dead-letter malformed task, dropping", "error", err, "cause", cause)
		return
	}
	telemetry.WorkerTasksTotal.WithLabelValues(outcomeDeadLettered).Inc()
	slog.Warn("moved malformed task to dead-letter queue", "error", cause)
}

// backoff sleeps for the backoff interval. It returns false if the worker
// was stopped while sleeping.
func (w *TaskWorker) backoff(ctx context.Context, reason string, err error) bool {
	w.setState(StateBackoff)
	telemetry.WorkerBackoffsTotal.WithLabelValues(reason).Inc()

	level := slog.LevelWarn
	var infra *domain.InfrastructureError
	if !errors.As(err, &infra) {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "task worker backing off", "reason", reason, "error", err, "backoff", w.backoffInterval)

	return w.sleep(ctx, w.backoffInterval)
}

func (w *TaskWorker) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *TaskWorker) setState(state string) {
	if w.state == state {
		return
	}
	if w.state != "" {
		slog.Debug("task worker state", "from", w.state, "to", state)
	}
	w.state = state
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		telemetry.WorkerState.WithLabelValues(s).Set(v)
	}
}
