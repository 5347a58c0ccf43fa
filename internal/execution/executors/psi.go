package executors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/teaclave-go/platform/internal/execution"
)

// orderedSetIntersectExecute computes the set intersection of two
// newline-delimited input slots, "set_a" and "set_b", and writes the sorted
// result to the "intersection" output slot. This is the two-party PSI
// builtin the original implementation ships under the same name; unlike a
// cryptographic PSI protocol, the plaintext intersection happens inside the
// enclave where both parties' data is already decrypted, which is exactly
// the trust boundary a confidential-computing platform buys over running
// the computation on either party's own infrastructure.
func orderedSetIntersectExecute(ctx context.Context, arguments map[string]string, payload []byte, rt *execution.Runtime) (execution.Result, error) {
	setA, err := readLineSet(rt, "set_a")
	if err != nil {
		return execution.Result{}, err
	}
	setB, err := readLineSet(rt, "set_b")
	if err != nil {
		return execution.Result{}, err
	}

	var intersection []string
	for item := range setA {
		if setB[item] {
			intersection = append(intersection, item)
		}
	}
	sort.Strings(intersection)

	out, err := rt.CreateOutput("intersection")
	if err != nil {
		return execution.Result{}, err
	}
	if _, err := io.WriteString(out, strings.Join(intersection, "\n")); err != nil {
		return execution.Result{}, err
	}

	return execution.Result{Summary: fmt.Sprintf("intersection size %d", len(intersection))}, nil
}

func readLineSet(rt *execution.Runtime, slot string) (map[string]bool, error) {
	r, err := rt.OpenInput(slot)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			set[line] = true
		}
	}
	return set, scanner.Err()
}
