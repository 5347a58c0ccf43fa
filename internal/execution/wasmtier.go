package execution

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/teaclave-go/platform/internal/taclerr"
)

// No example repo in this corpus runs WebAssembly; wazero is a pure-Go,
// dependency-free WASM runtime pulled in fresh for the WAMicroRuntime
// executor tier (spec §4.5.2: payload is a WebAssembly module, function
// name is an exported function). It's embedded rather than shelled out to,
// matching the other tiers' "no external process" sandboxing posture.
type wasmTierExecutor struct{}

// NewWAMicroRuntimeExecutor builds the Executor behind the WAMicroRuntime
// executor type.
func NewWAMicroRuntimeExecutor() Executor {
	return wasmTierExecutor{}
}

func (wasmTierExecutor) Execute(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error) {
	functionName := arguments["function_name"]
	if functionName == "" {
		return Result{}, taclerr.InvalidArgument("function_name", "required for WAMicroRuntime executors")
	}

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return Result{}, taclerr.Internal(err)
	}

	module, err := runtime.InstantiateWithConfig(ctx, payload, wazero.NewModuleConfig().WithStdin(stdinReader(rt)).WithStdout(stdoutWriter(rt)))
	if err != nil {
		return Result{}, taclerr.Execution(fmt.Sprintf("module instantiation failed: %v", err))
	}

	fn := module.ExportedFunction(functionName)
	if fn == nil {
		return Result{}, taclerr.Execution(fmt.Sprintf("module does not export %q", functionName))
	}
	if _, err := fn.Call(ctx); err != nil {
		return Result{}, taclerr.Execution(fmt.Sprintf("execution trapped: %v", err))
	}

	return Result{Summary: fmt.Sprintf("invoked %s", functionName)}, nil
}

// stdinReader feeds the module's "input" slot over stdin, the simplest
// host/guest data channel a WASI module can consume without custom ABI
// glue.
func stdinReader(rt *Runtime) io.Reader {
	r, err := rt.OpenInput("input")
	if err != nil {
		return nil
	}
	return r
}

// stdoutWriter captures the module's stdout into the "output" slot.
func stdoutWriter(rt *Runtime) io.Writer {
	w, err := rt.CreateOutput("output")
	if err != nil {
		return io.Discard
	}
	return w
}
