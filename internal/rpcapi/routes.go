package rpcapi

// Routes returns the spec §6.5 RPC surface as an explicit endpoint table,
// in the order listed there. Unlike the teacher's HTTP* naming-convention
// discovery, these are registered explicitly since the surface is fixed and
// small; the HTTP{Method}{Path} method names are kept as-is for continuity
// with that convention.
func (f *Frontend) Routes() []Endpoint {
	return []Endpoint{
		{Method: MethodPOST, Path: "/v1/login", Name: "UserLogin", Auth: false, Handler: f.HTTPPostLogin},
		{Method: MethodPOST, Path: "/v1/register", Name: "UserRegister", Auth: false, Handler: f.HTTPPostRegister},
		{Method: MethodPOST, Path: "/v1/functions", Name: "RegisterFunction", Auth: true, Handler: f.HTTPPostFunctions},
		{Method: MethodGET, Path: "/v1/functions/:id", Name: "GetFunction", Auth: true, Handler: f.HTTPGetFunctionsById},
		{Method: MethodPOST, Path: "/v1/input-files", Name: "RegisterInputFile", Auth: true, Handler: f.HTTPPostInputFiles},
		{Method: MethodGET, Path: "/v1/input-files/:id", Name: "GetInputFile", Auth: true, Handler: f.HTTPGetInputFilesById},
		{Method: MethodPOST, Path: "/v1/output-files", Name: "RegisterOutputFile", Auth: true, Handler: f.HTTPPostOutputFiles},
		{Method: MethodGET, Path: "/v1/output-files/:id", Name: "GetOutputFile", Auth: true, Handler: f.HTTPGetOutputFilesById},
		{Method: MethodPOST, Path: "/v1/fusion-outputs", Name: "RegisterFusionOutput", Auth: true, Handler: f.HTTPPostFusionOutputs},
		{Method: MethodPOST, Path: "/v1/input-files/from-output", Name: "RegisterInputFromOutput", Auth: true, Handler: f.HTTPPostInputFilesFromOutput},
		{Method: MethodPOST, Path: "/v1/tasks", Name: "CreateTask", Auth: true, Handler: f.HTTPPostTasks},
		{Method: MethodGET, Path: "/v1/tasks/:id", Name: "GetTask", Auth: true, Handler: f.HTTPGetTasksById},
		{Method: MethodPOST, Path: "/v1/tasks/:id/assign-data", Name: "AssignData", Auth: true, Handler: f.HTTPPostTasksByIdAssignData},
		{Method: MethodPOST, Path: "/v1/tasks/:id/approve", Name: "ApproveTask", Auth: true, Handler: f.HTTPPostTasksByIdApprove},
		{Method: MethodPOST, Path: "/v1/tasks/:id/invoke", Name: "InvokeTask", Auth: true, Handler: f.HTTPPostTasksByIdInvoke},
		{Method: MethodPOST, Path: "/v1/tasks/:id/cancel", Name: "CancelTask", Auth: true, Handler: f.HTTPPostTasksByIdCancel},
	}
}
