// Package accesscontrol implements the Access Control Engine of spec §4.2: a
// pure, stateless authorize(subject, action, object_refs) decision function.
// Grounded on the teacher's system/sandbox deny-by-default policy evaluator,
// generalized from pattern-matched rule lists to the platform's fixed
// per-action predicate table since every action here takes a distinct,
// strongly-typed set of object references rather than a free-form path.
package accesscontrol

import (
	"github.com/teaclave-go/platform/internal/model"
)

// Effect is the outcome of an authorize call, mirroring the teacher's
// PolicyEffect Allow/Deny pair.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// FunctionRef is the subset of a Function needed by the access decisions
// below; passed in by the caller per spec §4.2's "stateless, inputs fetched
// by the caller" contract.
type FunctionRef struct {
	FunctionID string
	Owner      string
	Public     bool
}

// InputFileRef is the subset of an InputFile needed by access decisions.
type InputFileRef struct {
	FileID string
	Owner  string
}

// OutputFileRef is the subset of an OutputFile or FusionData needed by
// access decisions. A FusionData ref sets OwnerSet instead of Owner.
type OutputFileRef struct {
	FileID   string
	Owner    string
	OwnerSet []string
}

func (o OutputFileRef) assignableBy(subject string) bool {
	if o.Owner != "" {
		return o.Owner == subject
	}
	for _, u := range o.OwnerSet {
		if u == subject {
			return true
		}
	}
	return false
}

// TaskRef is the subset of a Task needed by access decisions.
type TaskRef struct {
	TaskID       string
	Creator      string
	Participants []string
	Approvals    []string
}

func (t TaskRef) hasParticipant(subject string) bool {
	if t.Creator == subject {
		return true
	}
	for _, p := range t.Participants {
		if p == subject {
			return true
		}
	}
	return false
}

func (t TaskRef) fullyApproved() bool {
	if len(t.Participants) == 0 {
		return false
	}
	have := make(map[string]bool, len(t.Approvals))
	for _, a := range t.Approvals {
		have[a] = true
	}
	for _, p := range t.Participants {
		if !have[p] {
			return false
		}
	}
	return true
}

// CanRegisterFunction implements the RegisterFunction row: role must be
// FunctionOwner or PlatformAdmin.
func CanRegisterFunction(role model.Role) Effect {
	if role == model.RoleFunctionOwner || role == model.RolePlatformAdmin {
		return Allow
	}
	return Deny
}

// CanGetFunction implements the GetFunction(f) row.
func CanGetFunction(subject string, role model.Role, f FunctionRef) Effect {
	if f.Public || subject == f.Owner || role == model.RolePlatformAdmin {
		return Allow
	}
	return Deny
}

// CanRegisterInputFile implements the RegisterInputFile row: any
// authenticated user may register an input file they will own.
func CanRegisterInputFile(subject string) Effect {
	if subject == "" {
		return Deny
	}
	return Allow
}

// CanGetInputFile implements the GetInputFile(x) row.
func CanGetInputFile(subject string, x InputFileRef) Effect {
	if subject == x.Owner {
		return Allow
	}
	return Deny
}

// CanGetOutputFile implements the GetOutputFile(x) row.
func CanGetOutputFile(subject string, x OutputFileRef) Effect {
	if x.assignableBy(subject) {
		return Allow
	}
	return Deny
}

// CanCreateTask implements the CreateTask(f, inputs, outputs) row: the
// caller must be able to GetFunction(f), own (or co-own, for FusionData)
// every declared output slot, and be permitted to read every declared input
// slot under the GetInputFile rule.
func CanCreateTask(subject string, role model.Role, f FunctionRef, inputs []InputFileRef, outputs []OutputFileRef) Effect {
	if CanGetFunction(subject, role, f) == Deny {
		return Deny
	}
	for _, in := range inputs {
		if CanGetInputFile(subject, in) == Deny {
			return Deny
		}
	}
	for _, out := range outputs {
		if !out.assignableBy(subject) {
			return Deny
		}
	}
	return Allow
}

// CanAssignData implements the AssignData(t, m) row: only the task's
// creator may assign, every plain output must be owned by a task
// participant, and every FusionData output's owner_set must equal the
// participant set exactly, not merely intersect it - a FusionData file is
// assignable only as an output of a task whose participants are precisely
// its owners, so every co-owner gets a say and none gets read access to a
// task it never joined.
func CanAssignData(subject string, t TaskRef, assignedFiles []OutputFileRef, participants []string) Effect {
	if subject != t.Creator {
		return Deny
	}
	participantSet := make(map[string]bool, len(participants))
	for _, p := range participants {
		participantSet[p] = true
	}
	for _, f := range assignedFiles {
		if len(f.OwnerSet) > 0 {
			if !setEqual(f.OwnerSet, participantSet) {
				return Deny
			}
			continue
		}
		if f.Owner == "" || !participantSet[f.Owner] {
			return Deny
		}
	}
	return Allow
}

// setEqual reports whether ownerSet and participants contain exactly the
// same members, with no duplicates unaccounted for on either side.
func setEqual(ownerSet []string, participants map[string]bool) bool {
	if len(ownerSet) != len(participants) {
		return false
	}
	seen := make(map[string]bool, len(ownerSet))
	for _, o := range ownerSet {
		if !participants[o] || seen[o] {
			return false
		}
		seen[o] = true
	}
	return true
}

// CanApproveTask implements the ApproveTask(t) row.
func CanApproveTask(subject string, t TaskRef) Effect {
	if t.hasParticipant(subject) {
		return Allow
	}
	return Deny
}

// CanInvokeTask implements the InvokeTask(t) row: only the creator, and
// only once every participant (including the creator) has approved.
func CanInvokeTask(subject string, t TaskRef) Effect {
	if subject == t.Creator && t.fullyApproved() {
		return Allow
	}
	return Deny
}

// CanCancelTask implements the CancelTask(t) row: any participant may
// cancel, same predicate as ApproveTask since both are participant-scoped
// mutations on a task the subject already has standing in.
func CanCancelTask(subject string, t TaskRef) Effect {
	if t.hasParticipant(subject) {
		return Allow
	}
	return Deny
}

// CanGetTask implements the GetTask(t) row.
func CanGetTask(subject string, t TaskRef) Effect {
	if t.hasParticipant(subject) {
		return Allow
	}
	return Deny
}
