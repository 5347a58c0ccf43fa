package management

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// CreateTask creates a new Task in the Created state. Participants are
// derived later, at the first AssignData call, from the files assigned
// (spec §4.3's data-driven participant set); at creation time the task has
// only its creator.
func (s *Service) CreateTask(ctx context.Context, creator, functionID string, inputSlots, outputSlots []model.FileDescriptor, args map[string]string) (model.Task, error) {
	if _, err := s.GetFunction(ctx, functionID); err != nil {
		return model.Task{}, err
	}
	t := model.Task{
		TaskID:       newID("task"),
		FunctionID:   functionID,
		Creator:      creator,
		Participants: []string{creator},
		Arguments:    args,
		InputMap:     make(map[string]string, len(inputSlots)),
		OutputMap:    make(map[string]string, len(outputSlots)),
		Status:       model.TaskCreated,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.createTaskRecord(ctx, t); err != nil {
		return model.Task{}, err
	}
	s.log.WithContext(ctx).WithField("task_id", t.TaskID).Info("task created")
	s.metrics.TasksCreated.Inc()
	return t, nil
}

func (s *Service) createTaskRecord(ctx context.Context, t model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return taclerr.Internal(err)
	}
	return s.backend.CompareAndSwap(ctx, storage.PrefixTask+t.TaskID, nil, data)
}

// GetTask fetches a Task by ID.
func (s *Service) GetTask(ctx context.Context, taskID string) (model.Task, error) {
	return getJSON[model.Task](ctx, s.backend, storage.PrefixTask+taskID)
}

// casUpdateTask loads the current record, applies mutate, and writes it back
// with a CAS guard, retrying on lost races up to maxAttempts times. mutate
// returning an error aborts without writing.
func (s *Service) casUpdateTask(ctx context.Context, taskID string, mutate func(*model.Task) error) (model.Task, error) {
	const maxAttempts = 5
	key := storage.PrefixTask + taskID
	var last error
	for i := 0; i < maxAttempts; i++ {
		raw, err := s.backend.Get(ctx, key)
		if err != nil {
			return model.Task{}, err
		}
		var t model.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return model.Task{}, taclerr.Internal(err)
		}
		if err := mutate(&t); err != nil {
			return model.Task{}, err
		}
		t.UpdatedAt = time.Now().UTC()
		updated, err := json.Marshal(t)
		if err != nil {
			return model.Task{}, taclerr.Internal(err)
		}
		if err := s.backend.CompareAndSwap(ctx, key, raw, updated); err != nil {
			last = err
			continue
		}
		return t, nil
	}
	return model.Task{}, taclerr.Conflict("task", taskID, fmt.Sprintf("CAS retries exhausted: %v", last))
}

// AssignData fills in input_map/output_map entries and derives the
// participant set as the union of every referenced file's owner(s). Spec
// §4.3's idempotence rule: assigning the identical mapping again after
// DataAssigned is a no-op; assigning a different mapping is a Conflict. The
// participant set, once a task leaves Created, is frozen (an Open Question
// the distillation left unresolved; resolved here and recorded in
// DESIGN.md) so that ApproveTask's quorum can't be invalidated mid-flight by
// a later AssignData call enlarging it.
func (s *Service) AssignData(ctx context.Context, taskID string, inputMap, outputMap map[string]string, fileOwners map[string]string) (model.Task, error) {
	return s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status.Terminal() {
			return taclerr.Conflict("task", taskID, "task is in a terminal state")
		}
		if t.Status != model.TaskCreated && t.Status != model.TaskDataAssigned {
			return taclerr.Conflict("task", taskID, "data can only be assigned before approval")
		}

		if t.Status == model.TaskDataAssigned {
			if !mapsEqual(t.InputMap, inputMap) || !mapsEqual(t.OutputMap, outputMap) {
				return taclerr.Conflict("task", taskID, "data has already been assigned differently")
			}
			return nil // identical re-assignment: idempotent no-op
		}

		participants := deriveParticipants(t.Creator, fileOwners)
		if err := s.checkFusionOwnership(ctx, outputMap, participants); err != nil {
			return err
		}

		t.InputMap = inputMap
		t.OutputMap = outputMap
		t.Participants = participants
		t.Status = model.TaskDataAssigned
		return nil
	})
}

// checkFusionOwnership enforces spec §3: a FusionData file is assignable
// only as an output of a task whose participant set equals its owner_set
// exactly. Enforced here, not just in the frontend's accesscontrol check,
// since management is reachable directly over the internal mesh.
func (s *Service) checkFusionOwnership(ctx context.Context, outputMap map[string]string, participants []string) error {
	for slot, fileID := range outputMap {
		fd, err := s.GetFusionData(ctx, fileID)
		if err != nil {
			continue // not a FusionData file, nothing to enforce
		}
		if !stringSetEqual(fd.OwnerSet, participants) {
			return taclerr.PermissionDenied("AssignData", fmt.Sprintf("output slot %q owner_set does not match task participants", slot))
		}
	}
	return nil
}

// stringSetEqual reports whether a and b contain exactly the same members,
// ignoring order and duplicate occurrences.
func stringSetEqual(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	seen := make(map[string]bool, len(a))
	count := 0
	for _, v := range a {
		if !set[v] {
			return false
		}
		if !seen[v] {
			seen[v] = true
			count++
		}
	}
	return count == len(set)
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func deriveParticipants(creator string, fileOwners map[string]string) []string {
	seen := map[string]bool{creator: true}
	participants := []string{creator}
	for _, owner := range fileOwners {
		if owner == "" || seen[owner] {
			continue
		}
		seen[owner] = true
		participants = append(participants, owner)
	}
	return participants
}

// ApproveTask records subject's approval. When every participant has
// approved, the task transitions to Approved.
func (s *Service) ApproveTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	return s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status.Terminal() {
			return taclerr.Conflict("task", taskID, "task is in a terminal state")
		}
		if t.Status != model.TaskDataAssigned && t.Status != model.TaskApproved {
			return taclerr.Conflict("task", taskID, "task must be DataAssigned before approval")
		}
		if !t.HasParticipant(subject) {
			return taclerr.PermissionDenied("ApproveTask", taskID)
		}
		already := false
		for _, a := range t.Approvals {
			if a == subject {
				already = true
				break
			}
		}
		if !already {
			t.Approvals = append(t.Approvals, subject)
		}
		if t.FullyApproved() {
			t.Status = model.TaskApproved
		}
		return nil
	})
}

// InvokeTask transitions an Approved task to Staged, writing a StagedTask
// snapshot and enqueueing it for the scheduler. Per spec §4.3: if the
// creator is the task's sole participant and only their own approval is
// outstanding, InvokeTask auto-approves before staging. InvokeTask is
// idempotent for tasks already Staged/Running/terminal: it returns the
// current status without any further side effect.
func (s *Service) InvokeTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if t.Status == model.TaskStaged || t.Status == model.TaskRunning || t.Status.Terminal() {
		return t, nil
	}
	if subject != t.Creator {
		return model.Task{}, taclerr.PermissionDenied("InvokeTask", taskID)
	}

	if t.Status == model.TaskDataAssigned && len(t.Participants) == 1 && t.Participants[0] == t.Creator {
		if _, err := s.ApproveTask(ctx, taskID, t.Creator); err != nil {
			return model.Task{}, err
		}
	}

	t, err = s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status == model.TaskStaged || t.Status == model.TaskRunning || t.Status.Terminal() {
			return nil // raced with a concurrent InvokeTask; idempotent
		}
		if t.Status != model.TaskApproved {
			return taclerr.Conflict("task", taskID, "task must be fully approved before invocation")
		}
		t.Status = model.TaskStaged
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	if t.Status != model.TaskStaged {
		return t, nil
	}

	staged, err := s.buildStagedTask(ctx, t)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.putJSON(ctx, storage.PrefixStagedTask+t.TaskID, staged); err != nil {
		return model.Task{}, err
	}
	s.bumpFileRefCounts(ctx, t)

	data, err := json.Marshal(staged)
	if err != nil {
		return model.Task{}, taclerr.Internal(err)
	}
	if err := s.backend.Enqueue(ctx, storage.QueueStagedTasks, data); err != nil {
		return model.Task{}, err
	}

	s.log.WithContext(ctx).WithField("task_id", t.TaskID).Info("task staged")
	s.logAudit(ctx, subject, fmt.Sprintf("invoked task %s", taskID), "staged")
	s.metrics.TasksStaged.Inc()
	return t, nil
}

// CancelTask transitions any non-terminal task to Canceled.
// CancelTask cancels taskID. A task that hasn't started running yet is
// canceled immediately; a Running task only has its Canceled flag set,
// observed at the next worker heartbeat (spec §5), which aborts the
// executor and transitions the task to Canceled via FinishTask once the
// worker reports back.
func (s *Service) CancelTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	outcome := "already-terminal"
	t, err := s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status.Terminal() {
			return nil // idempotent: already in a terminal state
		}
		if !t.HasParticipant(subject) {
			return taclerr.PermissionDenied("CancelTask", taskID)
		}
		if t.Status == model.TaskRunning {
			t.Canceled = true
			outcome = "flagged"
			return nil
		}
		t.Status = model.TaskCanceled
		outcome = "canceled"
		return nil
	})
	if err != nil {
		return t, err
	}
	switch outcome {
	case "already-terminal":
		return t, nil
	case "flagged":
		s.logAudit(ctx, subject, fmt.Sprintf("requested cancellation of running task %s", taskID), "cancel-requested")
		return t, nil
	default:
		s.metrics.TasksFinished.WithLabelValues(string(model.TaskCanceled)).Inc()
		s.logAudit(ctx, subject, fmt.Sprintf("canceled task %s", taskID), "canceled")
		return t, nil
	}
}

// buildStagedTask resolves every input_map/output_map slot to a
// StagedFileView, snapshotting URL+crypto at Staged time so subsequent edits
// to file metadata never affect an already-staged task.
func (s *Service) buildStagedTask(ctx context.Context, t model.Task) (model.StagedTask, error) {
	fn, err := s.GetFunction(ctx, t.FunctionID)
	if err != nil {
		return model.StagedTask{}, err
	}

	inputs := make(map[string]model.StagedFileView, len(t.InputMap))
	for name, fileID := range t.InputMap {
		in, err := s.GetInputFile(ctx, fileID)
		if err != nil {
			return model.StagedTask{}, err
		}
		inputs[name] = model.StagedFileView{Name: name, URL: in.URL, Hash: in.ContentHash, Crypto: in.Crypto}
	}

	outputs := make(map[string]model.StagedFileView, len(t.OutputMap))
	for name, fileID := range t.OutputMap {
		view, err := s.resolveOutputView(ctx, name, fileID)
		if err != nil {
			return model.StagedTask{}, err
		}
		outputs[name] = view
	}

	return model.StagedTask{
		TaskID:       t.TaskID,
		FunctionName: fn.Name,
		ExecutorType: fn.ExecutorType,
		Payload:      fn.Payload,
		Arguments:    t.Arguments,
		InputData:    inputs,
		OutputData:   outputs,
	}, nil
}

func (s *Service) resolveOutputView(ctx context.Context, name, fileID string) (model.StagedFileView, error) {
	if out, err := s.GetOutputFile(ctx, fileID); err == nil {
		return model.StagedFileView{Name: name, URL: out.URL, Crypto: out.Crypto}, nil
	}
	fd, err := s.GetFusionData(ctx, fileID)
	if err != nil {
		return model.StagedFileView{}, taclerr.NotFound("output_slot", name)
	}
	return model.StagedFileView{Name: name, URL: fd.URL, Crypto: fd.Crypto}, nil
}

// bumpFileRefCounts increments RefCount on every file touched by a newly
// staged task. Best-effort diagnostic bookkeeping per the original
// implementation's reference-counted file model.
func (s *Service) bumpFileRefCounts(ctx context.Context, t model.Task) {
	for _, fileID := range t.InputMap {
		s.incrementRefCount(ctx, storage.PrefixInputFile+fileID)
	}
	for _, fileID := range t.OutputMap {
		s.incrementRefCount(ctx, storage.PrefixOutputFile+fileID)
		s.incrementRefCount(ctx, storage.PrefixFusionData+fileID)
	}
}

// TransitionToRunning moves a Staged task to Running once the scheduler has
// handed it to a worker. Called by the scheduler's PullTask, not by any
// user-facing RPC.
func (s *Service) TransitionToRunning(ctx context.Context, taskID, workerID string) (model.Task, error) {
	return s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status == model.TaskRunning {
			return nil // idempotent: already handed off
		}
		if t.Status != model.TaskStaged {
			return taclerr.Conflict("task", taskID, "task must be Staged before dispatch")
		}
		t.Status = model.TaskRunning
		t.WorkerID = workerID
		return nil
	})
}

// FinishTask records a worker's result and transitions the task to its
// terminal state. Called by the scheduler, not by any user-facing RPC.
func (s *Service) FinishTask(ctx context.Context, taskID string, result model.TaskResult) (model.Task, error) {
	t, err := s.casUpdateTask(ctx, taskID, func(t *model.Task) error {
		if t.Status.Terminal() {
			return nil
		}
		t.Result = &result
		switch {
		case t.Canceled:
			t.Status = model.TaskCanceled
		case result.OK:
			t.Status = model.TaskFinished
		default:
			t.Status = model.TaskFailed
		}
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	_ = s.backend.Delete(ctx, storage.PrefixStagedTask+taskID)
	s.metrics.TasksFinished.WithLabelValues(string(t.Status)).Inc()
	return t, nil
}

// logAudit is a thin convenience wrapper kept separate from obslog so the
// management package can add a one-line call wherever a privileged
// transition occurs without repeating the AuditRecord literal everywhere.
// It always logs directly and additionally fans the record out over the
// audit bus, if one was wired, for external sinks.
func (s *Service) logAudit(ctx context.Context, user, message, result string) {
	rec := obslog.AuditRecord{Time: time.Now().UTC(), User: user, Message: message, Result: result}
	s.log.Audit(ctx, rec)
	if s.audit != nil {
		if err := s.audit.Publish(ctx, rec); err != nil {
			s.log.WithContext(ctx).WithField("error", err.Error()).Warn("audit bus publish failed")
		}
	}
}
