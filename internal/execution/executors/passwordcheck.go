package executors

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/teaclave-go/platform/internal/execution"
)

// passwordCheckExecute checks whether the SHA-256 hash supplied as the
// "candidate_hash" argument appears in the "breached_hashes" input slot
// (one hex digest per line), without ever revealing which entry matched to
// the caller beyond a boolean - the canonical confidential-computing demo
// of checking a password against a breach corpus neither party discloses in
// the clear.
func passwordCheckExecute(ctx context.Context, arguments map[string]string, payload []byte, rt *execution.Runtime) (execution.Result, error) {
	candidate := strings.ToLower(strings.TrimSpace(arguments["candidate_hash"]))
	if candidate == "" {
		if plain, ok := arguments["candidate"]; ok {
			sum := sha256.Sum256([]byte(plain))
			candidate = hex.EncodeToString(sum[:])
		}
	}

	r, err := rt.OpenInput("breached_hashes")
	if err != nil {
		return execution.Result{}, err
	}
	found := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.ToLower(strings.TrimSpace(scanner.Text())) == candidate {
			found = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return execution.Result{}, err
	}

	out, err := rt.CreateOutput("result")
	if err != nil {
		return execution.Result{}, err
	}
	verdict := "not_breached"
	if found {
		verdict = "breached"
	}
	if _, err := io.WriteString(out, verdict); err != nil {
		return execution.Result{}, err
	}
	return execution.Result{Summary: verdict}, nil
}
