// Package executors implements the Builtin executor registry of spec
// §4.5.2: a fixed table of function names an Executor{Type: Builtin} task's
// function_name indexes into.
//
// echo, ordered_set_intersect, and password_check are fully implemented
// here, exercising the two-party private-set-intersection scenario end to
// end. The remaining names from the original implementation's builtin
// registry (gbdt_train, gbdt_predict, rsa_sign, online_decrypt,
// private_join_and_compute, pca, policy_enforcement) are registered as
// stubs returning ErrExecution, "not implemented in this build" - present
// so GetFunction/CreateTask against those names fails at dispatch rather
// than at registration, matching the original's behavior of accepting any
// known function name up front.
package executors

import (
	"context"
	"fmt"

	"github.com/teaclave-go/platform/internal/execution"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// Registry returns the static Builtin function-name table.
func Registry() map[string]execution.Executor {
	return map[string]execution.Executor{
		"echo":                     execution.ExecutorFunc(echoExecute),
		"ordered_set_intersect":    execution.ExecutorFunc(orderedSetIntersectExecute),
		"password_check":           execution.ExecutorFunc(passwordCheckExecute),
		"gbdt_train":               stub("gbdt_train"),
		"gbdt_predict":             stub("gbdt_predict"),
		"rsa_sign":                 stub("rsa_sign"),
		"online_decrypt":           stub("online_decrypt"),
		"private_join_and_compute": stub("private_join_and_compute"),
		"pca":                      stub("pca"),
		"policy_enforcement":       stub("policy_enforcement"),
	}
}

func stub(name string) execution.Executor {
	return execution.ExecutorFunc(func(ctx context.Context, arguments map[string]string, payload []byte, rt *execution.Runtime) (execution.Result, error) {
		return execution.Result{}, taclerr.Execution(fmt.Sprintf("%s: not implemented in this build", name))
	})
}
