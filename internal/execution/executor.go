package execution

import "context"

// Result is an executor's outcome: a human-readable summary plus whatever it
// wrote through the Runtime. Spec §4.5.2: "Return value is a UTF-8 summary
// string plus the set of output file hashes implicit in what was written
// through the runtime" - the hash computation happens in the worker, after
// sealing, so Result only carries the summary.
type Result struct {
	Summary string
}

// Executor is the builtin/python/wasm execution contract of spec §4.5.2.
// Arguments are caller-supplied key/value strings; payload is the
// function's executor-specific code or script; runtime is the narrow
// open_input/create_output facade.
type Executor interface {
	Execute(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error) {
	return f(ctx, arguments, payload, rt)
}
