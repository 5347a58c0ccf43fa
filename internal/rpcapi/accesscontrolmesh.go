package rpcapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teaclave-go/platform/internal/accesscontrol"
	"github.com/teaclave-go/platform/internal/model"
)

// NewAccessControlMeshRouter exposes the stateless access-control decision
// table over HTTP for policy-simulation and audit tooling that wants to ask
// "what would happen" without driving a real request through the frontend.
// The frontend itself calls accesscontrol.Can* in-process, since every
// decision it needs is already on the request's hot path; this router
// serves a second, independent consumer of the same pure functions.
func NewAccessControlMeshRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/internal/v1/accesscontrol/can-register-function", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanRegisterFunction(roleOf(body.Role))), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-get-function", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject  string                    `json:"subject"`
			Role     string                    `json:"role"`
			Function accesscontrol.FunctionRef `json:"function"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanGetFunction(body.Subject, roleOf(body.Role), body.Function)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-register-input-file", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string `json:"subject"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanRegisterInputFile(body.Subject)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-get-input-file", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                     `json:"subject"`
			File    accesscontrol.InputFileRef `json:"file"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanGetInputFile(body.Subject, body.File)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-get-output-file", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                      `json:"subject"`
			File    accesscontrol.OutputFileRef `json:"file"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanGetOutputFile(body.Subject, body.File)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-create-task", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject  string                        `json:"subject"`
			Role     string                        `json:"role"`
			Function accesscontrol.FunctionRef     `json:"function"`
			Inputs   []accesscontrol.InputFileRef  `json:"inputs"`
			Outputs  []accesscontrol.OutputFileRef `json:"outputs"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanCreateTask(body.Subject, roleOf(body.Role), body.Function, body.Inputs, body.Outputs)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-assign-data", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject       string                        `json:"subject"`
			Task          accesscontrol.TaskRef         `json:"task"`
			AssignedFiles []accesscontrol.OutputFileRef `json:"assigned_files"`
			Participants  []string                      `json:"participants"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanAssignData(body.Subject, body.Task, body.AssignedFiles, body.Participants)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-approve-task", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                `json:"subject"`
			Task    accesscontrol.TaskRef `json:"task"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanApproveTask(body.Subject, body.Task)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-invoke-task", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                `json:"subject"`
			Task    accesscontrol.TaskRef `json:"task"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanInvokeTask(body.Subject, body.Task)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-cancel-task", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                `json:"subject"`
			Task    accesscontrol.TaskRef `json:"task"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanCancelTask(body.Subject, body.Task)), nil
	}))

	r.Post("/internal/v1/accesscontrol/can-get-task", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string                `json:"subject"`
			Task    accesscontrol.TaskRef `json:"task"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return effectBody(accesscontrol.CanGetTask(body.Subject, body.Task)), nil
	}))

	return r
}

func roleOf(s string) model.Role {
	return model.Role(s)
}

func effectBody(e accesscontrol.Effect) map[string]any {
	return map[string]any{"effect": string(e), "allow": e == accesscontrol.Allow}
}
