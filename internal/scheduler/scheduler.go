// Package scheduler implements the Scheduler of spec §4.4: worker
// assignment bookkeeping, heartbeat extension, result upload, and the
// periodic reaper that fails tasks whose worker has gone silent.
//
// Grounded on the teacher's pattern of small mutex-guarded maps behind a
// service struct (system/framework's in-process state holders); the
// periodic reaper uses github.com/robfig/cron/v3, part of the teacher's own
// dependency set, for the fixed-interval sweep the teacher elsewhere wires
// up for its own scheduled jobs.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

func unmarshalStagedTask(raw []byte, out *model.StagedTask) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return taclerr.Internal(err)
	}
	return nil
}

type assignment struct {
	taskID   string
	deadline time.Time
}

// Scheduler holds the two pieces of volatile per-worker state spec §4.4
// names: assignments and heartbeats. Both live only in memory; a scheduler
// restart loses in-flight assignments, which is acceptable because the
// execution worker's at-most-once contract already treats a worker crash as
// an unrecoverable task failure.
type Scheduler struct {
	mu          sync.Mutex
	assignments map[string]assignment // worker_id -> assignment
	heartbeats  map[string]time.Time  // worker_id -> last_seen

	backend storage.Backend
	mgmt    management.Client
	log     *obslog.Logger
	metrics *metrics.Registry

	tExec time.Duration
	tReap time.Duration

	cron *cron.Cron
}

// New builds a Scheduler. tExec is the per-task execution deadline; tReap is
// the reaper sweep interval, expected to be much smaller than tExec per spec
// §4.4.
func New(backend storage.Backend, mgmt management.Client, log *obslog.Logger, m *metrics.Registry, tExec, tReap time.Duration) *Scheduler {
	return &Scheduler{
		assignments: make(map[string]assignment),
		heartbeats:  make(map[string]time.Time),
		backend:     backend,
		mgmt:        mgmt,
		log:         log,
		metrics:     m,
		tExec:       tExec,
		tReap:       tReap,
	}
}

// PullTask dequeues one StagedTask, assigns it to workerID, and transitions
// the underlying Task to Running. A worker already holding an assignment is
// rejected: at most one task per worker at a time.
func (s *Scheduler) PullTask(ctx context.Context, workerID string) (model.StagedTask, error) {
	s.mu.Lock()
	if _, busy := s.assignments[workerID]; busy {
		s.mu.Unlock()
		return model.StagedTask{}, taclerr.Scheduling("worker already holds an assignment")
	}
	s.mu.Unlock()

	raw, ok, err := s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	if err != nil {
		return model.StagedTask{}, err
	}
	if !ok {
		return model.StagedTask{}, taclerr.Scheduling("queue is empty")
	}

	var staged model.StagedTask
	if err := unmarshalStagedTask(raw, &staged); err != nil {
		return model.StagedTask{}, err
	}

	if _, err := s.mgmt.TransitionToRunning(ctx, staged.TaskID, workerID); err != nil {
		return model.StagedTask{}, err
	}

	s.mu.Lock()
	s.assignments[workerID] = assignment{taskID: staged.TaskID, deadline: time.Now().Add(s.tExec)}
	s.heartbeats[workerID] = time.Now()
	s.mu.Unlock()

	s.log.WithContext(ctx).WithField("worker_id", workerID).WithField("task_id", staged.TaskID).Info("task pulled")
	return staged, nil
}

// Heartbeat extends workerID's deadline by tExec, provided it is currently
// holding taskID, and reports whether the task has since been flagged for
// cancellation (spec §5): the worker is expected to abort its executor and
// report back once canceled is true.
func (s *Scheduler) Heartbeat(ctx context.Context, workerID, taskID string) (canceled bool, err error) {
	s.mu.Lock()
	a, ok := s.assignments[workerID]
	if !ok || a.taskID != taskID {
		s.mu.Unlock()
		return false, taclerr.Scheduling("no such assignment")
	}
	a.deadline = time.Now().Add(s.tExec)
	s.assignments[workerID] = a
	s.heartbeats[workerID] = time.Now()
	s.mu.Unlock()

	t, err := s.mgmt.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return t.Canceled, nil
}

// UploadResult validates the assignment, persists the result into the Task,
// clears the assignment, and deletes the StagedTask record.
func (s *Scheduler) UploadResult(ctx context.Context, workerID, taskID string, result model.TaskResult) (model.Task, error) {
	s.mu.Lock()
	a, ok := s.assignments[workerID]
	if !ok || a.taskID != taskID {
		s.mu.Unlock()
		return model.Task{}, taclerr.Scheduling("no such assignment")
	}
	delete(s.assignments, workerID)
	delete(s.heartbeats, workerID)
	s.mu.Unlock()

	return s.mgmt.FinishTask(ctx, taskID, result)
}

// Reap revokes every assignment whose deadline has passed, failing the
// underlying task with reason WorkerTimeout and deleting its StagedTask
// record. No redispatch: a task with side effects must not run twice.
func (s *Scheduler) Reap(ctx context.Context) (reclaimed int) {
	now := time.Now()
	s.mu.Lock()
	var expired []string
	for workerID, a := range s.assignments {
		if a.deadline.Before(now) {
			expired = append(expired, workerID)
		}
	}
	var taskIDs []string
	for _, workerID := range expired {
		taskIDs = append(taskIDs, s.assignments[workerID].taskID)
		delete(s.assignments, workerID)
		delete(s.heartbeats, workerID)
	}
	s.mu.Unlock()

	for i, taskID := range taskIDs {
		_, err := s.mgmt.FinishTask(ctx, taskID, model.TaskResult{OK: false, FailureReason: "WorkerTimeout"})
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("task_id", taskID).Warn("reaper failed to finalize task")
			continue
		}
		s.log.WithContext(ctx).WithField("worker_id", expired[i]).WithField("task_id", taskID).Warn("worker assignment reaped")
		reclaimed++
	}
	if reclaimed > 0 {
		s.metrics.ReaperReclaims.Add(float64(reclaimed))
	}
	return reclaimed
}

// StartReaper schedules Reap to run every tReap via a cron.Cron instance, in
// the "@every" form. Call Stop to halt it.
func (s *Scheduler) StartReaper(ctx context.Context) error {
	s.cron = cron.New()
	spec := "@every " + s.tReap.String()
	_, err := s.cron.AddFunc(spec, func() { s.Reap(ctx) })
	if err != nil {
		return taclerr.Internal(err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the reaper's cron schedule.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// HeartbeatAge reports how long ago workerID last sent a heartbeat, for the
// teaclave_worker_heartbeat_age_seconds gauge.
func (s *Scheduler) HeartbeatAge(workerID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.heartbeats[workerID]
	if !ok {
		return 0, false
	}
	return time.Since(last), true
}
