package executors

import (
	"context"

	"github.com/teaclave-go/platform/internal/execution"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// echoExecute returns its message argument verbatim as the result summary,
// taking no input and producing no output file. Mirrors the original
// Teaclave echo function, which does `args.try_get("payload")` and returns
// it as-is; "message" is accepted as an alias since that's the argument
// name callers use.
func echoExecute(ctx context.Context, arguments map[string]string, payload []byte, rt *execution.Runtime) (execution.Result, error) {
	msg, ok := arguments["message"]
	if !ok {
		msg, ok = arguments["payload"]
	}
	if !ok {
		return execution.Result{}, taclerr.InvalidArgument("arguments", "echo requires a message or payload argument")
	}
	return execution.Result{Summary: msg}, nil
}
