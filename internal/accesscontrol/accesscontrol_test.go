package accesscontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teaclave-go/platform/internal/model"
)

func TestCanRegisterFunction(t *testing.T) {
	assert.Equal(t, Allow, CanRegisterFunction(model.RoleFunctionOwner))
	assert.Equal(t, Allow, CanRegisterFunction(model.RolePlatformAdmin))
	assert.Equal(t, Deny, CanRegisterFunction(model.RoleDataOwner))
}

func TestCanGetFunction(t *testing.T) {
	f := FunctionRef{Owner: "alice", Public: false}
	assert.Equal(t, Allow, CanGetFunction("alice", model.RoleFunctionOwner, f))
	assert.Equal(t, Deny, CanGetFunction("bob", model.RoleDataOwner, f))
	assert.Equal(t, Allow, CanGetFunction("bob", model.RolePlatformAdmin, f))

	pub := FunctionRef{Owner: "alice", Public: true}
	assert.Equal(t, Allow, CanGetFunction("bob", model.RoleDataOwner, pub))
}

func TestCanCreateTaskRequiresEveryInputAndOutput(t *testing.T) {
	f := FunctionRef{Owner: "alice", Public: true}
	inputs := []InputFileRef{{FileID: "i1", Owner: "bob"}}
	outputs := []OutputFileRef{{FileID: "o1", Owner: "bob"}}

	assert.Equal(t, Allow, CanCreateTask("bob", model.RoleDataOwner, f, inputs, outputs))

	outputsNotOwned := []OutputFileRef{{FileID: "o1", Owner: "carol"}}
	assert.Equal(t, Deny, CanCreateTask("bob", model.RoleDataOwner, f, inputs, outputsNotOwned))

	fusionOK := []OutputFileRef{{FileID: "fd1", OwnerSet: []string{"alice", "bob"}}}
	assert.Equal(t, Allow, CanCreateTask("bob", model.RoleDataOwner, f, inputs, fusionOK))
}

func TestCanInvokeTaskRequiresFullApproval(t *testing.T) {
	task := TaskRef{Creator: "alice", Participants: []string{"alice", "bob"}, Approvals: []string{"alice"}}
	assert.Equal(t, Deny, CanInvokeTask("alice", task))

	task.Approvals = []string{"alice", "bob"}
	assert.Equal(t, Allow, CanInvokeTask("alice", task))
	assert.Equal(t, Deny, CanInvokeTask("bob", task))
}

func TestCanGetTaskAndApprove(t *testing.T) {
	task := TaskRef{Creator: "alice", Participants: []string{"alice", "bob"}}
	assert.Equal(t, Allow, CanGetTask("bob", task))
	assert.Equal(t, Deny, CanGetTask("mallory", task))
	assert.Equal(t, Allow, CanApproveTask("bob", task))
	assert.Equal(t, Deny, CanApproveTask("mallory", task))
}

func TestCanAssignDataRestrictsToCreatorAndParticipantOwnership(t *testing.T) {
	task := TaskRef{Creator: "alice", Participants: []string{"alice", "bob"}}
	files := []OutputFileRef{{FileID: "i1", Owner: "bob"}}
	assert.Equal(t, Allow, CanAssignData("alice", task, files, task.Participants))
	assert.Equal(t, Deny, CanAssignData("bob", task, files, task.Participants))

	outsider := []OutputFileRef{{FileID: "i2", Owner: "mallory"}}
	assert.Equal(t, Deny, CanAssignData("alice", task, outsider, task.Participants))
}

func TestCanAssignDataRequiresExactFusionOwnerSetMatch(t *testing.T) {
	task := TaskRef{Creator: "alice", Participants: []string{"alice"}}

	exact := []OutputFileRef{{FileID: "fd1", OwnerSet: []string{"alice"}}}
	assert.Equal(t, Allow, CanAssignData("alice", task, exact, task.Participants))

	// owner_set intersects the participant set but isn't equal to it: bob
	// would gain read access to a task he never participated in.
	broader := []OutputFileRef{{FileID: "fd1", OwnerSet: []string{"alice", "bob"}}}
	assert.Equal(t, Deny, CanAssignData("alice", task, broader, task.Participants))

	// owner_set is a strict subset of participants: also not an exact match.
	twoParty := TaskRef{Creator: "alice", Participants: []string{"alice", "bob"}}
	narrower := []OutputFileRef{{FileID: "fd1", OwnerSet: []string{"alice"}}}
	assert.Equal(t, Deny, CanAssignData("alice", twoParty, narrower, twoParty.Participants))
}
