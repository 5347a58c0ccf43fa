package execution

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/taclerr"
	"github.com/teaclave-go/platform/internal/teecrypto"
)

// Fetcher is the allowlisted outbound HTTP surface the worker uses to
// resolve a StagedFileView's URL into bytes. Grounded on the teacher's
// system/tee OCALL handler: untrusted code never gets a raw network socket,
// only a host-mediated fetch filtered by an explicit host allowlist.
type Fetcher struct {
	client       *http.Client
	allowedHosts map[string]bool
}

// NewFetcher builds a Fetcher restricted to allowedHosts. An empty list
// allows every host, matching the teacher's development-mode default; a
// production deployment should always set this.
func NewFetcher(allowedHosts []string, timeout time.Duration) *Fetcher {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		allowedHosts: allowed,
	}
}

// Fetch retrieves rawURL's bytes, or returns plaintext from a file:// URL
// for local/testing deployments.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, taclerr.InvalidArgument("url", err.Error())
	}
	if u.Scheme == "file" {
		return nil, taclerr.Execution("file:// URLs are resolved by the deployment's local storage shim, not Fetch")
	}
	if len(f.allowedHosts) > 0 && !f.allowedHosts[strings.ToLower(u.Hostname())] {
		return nil, taclerr.PermissionDenied("fetch", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, taclerr.Internal(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, taclerr.Execution(fmt.Sprintf("fetch %s: %v", rawURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, taclerr.Execution(fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}

// Upload writes data to rawURL. The in-memory deployment keeps an
// in-process store for file:// URLs (wired by the caller); everything else
// goes through an HTTP PUT.
func (f *Fetcher) Upload(ctx context.Context, rawURL string, data []byte) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return taclerr.InvalidArgument("url", err.Error())
	}
	if u.Scheme == "file" {
		return taclerr.Execution("file:// URLs are resolved by the deployment's local storage shim, not Upload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return taclerr.Internal(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return taclerr.Execution(fmt.Sprintf("upload %s: %v", rawURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return taclerr.Execution(fmt.Sprintf("upload %s: status %d", rawURL, resp.StatusCode))
	}
	return nil
}

// SchedulerClient is the subset of the scheduler the worker's pull loop
// needs. Defined here, implemented by *scheduler.Scheduler, to keep
// execution free of a direct dependency on the scheduler's internal
// assignment bookkeeping.
type SchedulerClient interface {
	PullTask(ctx context.Context, workerID string) (model.StagedTask, error)
	Heartbeat(ctx context.Context, workerID, taskID string) (canceled bool, err error)
	UploadResult(ctx context.Context, workerID, taskID string, result model.TaskResult) (model.Task, error)
}

// Worker runs the single-threaded pull loop of spec §4.5 against one
// scheduler.
type Worker struct {
	id       string
	sched    SchedulerClient
	fetcher  *Fetcher
	registry map[string]map[string]Executor // executor_type -> function_name -> Executor
	log      *obslog.Logger
	tIdle    time.Duration
	tExec    time.Duration
}

// NewWorker builds a Worker. registry maps an ExecutorType to its
// function-name table; the Builtin entry is normally executors.Registry(),
// Python/WAMicroRuntime entries wrap NewPythonTierExecutor/
// NewWAMicroRuntimeExecutor under an arbitrary advisory label since those
// tiers select behavior from the payload, not the function name.
func NewWorker(id string, sched SchedulerClient, fetcher *Fetcher, registry map[string]map[string]Executor, log *obslog.Logger, tIdle, tExec time.Duration) *Worker {
	return &Worker{id: id, sched: sched, fetcher: fetcher, registry: registry, log: log, tIdle: tIdle, tExec: tExec}
}

// IdleInterval is how long the caller's pull loop should sleep after a
// RunOnce call that found the queue empty (spec §4.5 step 1).
func (w *Worker) IdleInterval() time.Duration {
	return w.tIdle
}

// RunOnce executes a single pull-loop iteration: returns (false, nil) if
// the queue was empty (caller should sleep tIdle), otherwise runs the task
// to completion and returns (true, nil).
func (w *Worker) RunOnce(ctx context.Context) (ran bool, err error) {
	staged, err := w.sched.PullTask(ctx, w.id)
	if err != nil {
		if taclerr.Classify(err) == taclerr.CategoryScheduling {
			return false, nil
		}
		return false, err
	}

	runCtx, abort := context.WithCancel(ctx)
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.heartbeatLoop(heartbeatCtx, staged.TaskID, abort)

	result := w.runTask(runCtx, staged)
	if _, err := w.sched.UploadResult(ctx, w.id, staged.TaskID, result); err != nil {
		return true, err
	}
	return true, nil
}

// heartbeatLoop polls the scheduler at tExec/3 and calls abort as soon as
// the task is reported canceled, unblocking runTask's cooperative checks.
func (w *Worker) heartbeatLoop(ctx context.Context, taskID string, abort context.CancelFunc) {
	interval := w.tExec / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			canceled, err := w.sched.Heartbeat(ctx, w.id, taskID)
			if err != nil {
				continue
			}
			if canceled {
				abort()
				return
			}
		}
	}
}

func (w *Worker) runTask(ctx context.Context, staged model.StagedTask) model.TaskResult {
	inputs, err := w.loadInputs(ctx, staged)
	if err != nil {
		return failureResult(err)
	}
	if ctx.Err() != nil {
		return canceledResult()
	}

	rt := NewRuntime(inputs)
	executor, err := w.resolveExecutor(staged)
	if err != nil {
		return failureResult(err)
	}

	result, err := executor.Execute(ctx, staged.Arguments, staged.Payload, rt)
	if ctx.Err() != nil {
		return canceledResult()
	}
	if err != nil {
		return failureResult(err)
	}

	hashes, err := w.sealAndUpload(ctx, staged, rt)
	if err != nil {
		if ctx.Err() != nil {
			return canceledResult()
		}
		return failureResult(err)
	}

	return model.TaskResult{OK: true, Summary: result.Summary, OutputHashes: hashes}
}

func (w *Worker) loadInputs(ctx context.Context, staged model.StagedTask) (map[string][]byte, error) {
	inputs := make(map[string][]byte, len(staged.InputData))
	for name, view := range staged.InputData {
		raw, err := w.fetcher.Fetch(ctx, view.URL)
		if err != nil {
			return nil, err
		}
		if view.Hash != "" && contentHash(raw) != view.Hash {
			return nil, taclerr.Crypto(fmt.Sprintf("content hash mismatch for input %q", name))
		}
		plaintext, err := teecrypto.Decrypt(view.Crypto, view.URL, raw)
		if err != nil {
			return nil, err
		}
		inputs[name] = plaintext
	}
	return inputs, nil
}

func (w *Worker) sealAndUpload(ctx context.Context, staged model.StagedTask, rt *Runtime) (map[string]string, error) {
	hashes := make(map[string]string, len(staged.OutputData))
	for name, plaintext := range rt.Written() {
		view, ok := staged.OutputData[name]
		if !ok {
			continue // executor wrote a slot the function didn't declare; ignored
		}
		sealed, err := teecrypto.Encrypt(view.Crypto, view.URL, plaintext)
		if err != nil {
			return nil, err
		}
		if err := w.fetcher.Upload(ctx, view.URL, sealed); err != nil {
			return nil, err
		}
		hashes[name] = contentHash(plaintext)
	}
	return hashes, nil
}

func (w *Worker) resolveExecutor(staged model.StagedTask) (Executor, error) {
	byName, ok := w.registry[string(staged.ExecutorType)]
	if !ok {
		return nil, taclerr.Execution(fmt.Sprintf("no executors registered for type %q", staged.ExecutorType))
	}
	if staged.ExecutorType != model.ExecutorBuiltin {
		// Python/WAMicroRuntime dispatch on a single catch-all entry; the
		// real selection happens inside the executor via payload/arguments.
		for _, ex := range byName {
			return ex, nil
		}
	}
	ex, ok := byName[staged.FunctionName]
	if !ok {
		return nil, taclerr.Execution(fmt.Sprintf("unknown builtin function %q", staged.FunctionName))
	}
	return ex, nil
}

func failureResult(err error) model.TaskResult {
	return model.TaskResult{OK: false, FailureReason: err.Error()}
}

// canceledResult is reported after the worker observes a cancellation flag
// and aborts; management's FinishTask maps it to Canceled rather than
// Failed by checking the task's own Canceled flag, not this string.
func canceledResult() model.TaskResult {
	return model.TaskResult{OK: false, FailureReason: "canceled"}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
