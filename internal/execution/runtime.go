// Package execution implements the Execution Worker of spec §4.5: the pull
// loop, the sandboxed Runtime facade executors consume, and dispatch to the
// executor registry.
package execution

import (
	"bytes"
	"io"

	"github.com/teaclave-go/platform/internal/taclerr"
)

// Runtime is the narrow facade spec §4.5.1 grants an executor: open_input
// and create_output, nothing else. Executors never see a URL, a crypto key,
// or the filesystem - the worker resolves and seals everything around this
// boundary, mirroring the teacher's OCALL model of confining untrusted code
// to a small allowlisted surface.
type Runtime struct {
	inputs  map[string][]byte
	outputs map[string]*bytes.Buffer
}

// NewRuntime builds a Runtime pre-loaded with decrypted input bytes; outputs
// accumulate in memory until the worker seals and uploads them.
func NewRuntime(inputs map[string][]byte) *Runtime {
	return &Runtime{
		inputs:  inputs,
		outputs: make(map[string]*bytes.Buffer),
	}
}

// OpenInput returns a reader over name's decrypted bytes.
func (r *Runtime) OpenInput(name string) (io.Reader, error) {
	data, ok := r.inputs[name]
	if !ok {
		return nil, taclerr.NotFound("input_slot", name)
	}
	return bytes.NewReader(data), nil
}

// CreateOutput returns a writer that accumulates name's plaintext bytes; the
// worker seals and uploads the buffer once the executor returns.
func (r *Runtime) CreateOutput(name string) (io.Writer, error) {
	buf := &bytes.Buffer{}
	r.outputs[name] = buf
	return buf, nil
}

// Written returns the plaintext bytes written to every output slot that was
// ever opened via CreateOutput, for the worker to seal and upload.
func (r *Runtime) Written() map[string][]byte {
	out := make(map[string][]byte, len(r.outputs))
	for name, buf := range r.outputs {
		out[name] = buf.Bytes()
	}
	return out
}
