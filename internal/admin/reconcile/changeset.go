// Package reconcile implements the operator's batch review workflow: stage a
// set of status changes locally, then commit them atomically against the
// identity-set version they were staged on.
package reconcile

import "slices"

// Rejection pairs a name with the operator's optional reason.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// ChangeSet is a value object holding staged operations keyed by name.
// Staging methods return the updated set and resolve contradictions as they
// are staged, so a committed set never carries opposing instructions:
//
//   - approve and reject on the same name replace each other
//   - a move cancels the opposite staged move
//   - a delete strips the name from every other list
//
// A name therefore ends up in at most one of {Approve, Reject}, at most one
// of {MoveToRegistered, MoveToRejected}, and at most one delete list.
type ChangeSet struct {
	Approve          []string    `json:"approve,omitempty"`
	Reject           []Rejection `json:"reject,omitempty"`
	MoveToRegistered []string    `json:"to_registered,omitempty"`
	MoveToRejected   []Rejection `json:"to_rejected,omitempty"`
	AddRequests      []string    `json:"add_requests,omitempty"`
	DeletePending    []string    `json:"delete_pending,omitempty"`
	DeleteRegistered []string    `json:"delete_registered,omitempty"`
	DeleteRejected   []string    `json:"delete_rejected,omitempty"`
}

// StageApprove marks a pending name for activation, cancelling any staged
// rejection of it.
func (cs ChangeSet) StageApprove(name string) ChangeSet {
	cs.Reject = removeRejection(cs.Reject, name)
	cs.Approve = appendUnique(cs.Approve, name)
	return cs
}

// StageReject marks a pending name for rejection, cancelling any staged
// approval of it.
func (cs ChangeSet) StageReject(name, reason string) ChangeSet {
	cs.Approve = remove(cs.Approve, name)
	cs.Reject = appendRejection(cs.Reject, name, reason)
	return cs
}

// StageMoveToRegistered stages a rejected name's return to registered. When
// the name is only staged for the opposite move, the two cancel out; when it
// carries a staged rejection, the rejection flips into an approval.
func (cs ChangeSet) StageMoveToRegistered(name string) ChangeSet {
	if containsRejection(cs.MoveToRejected, name) {
		cs.MoveToRejected = removeRejection(cs.MoveToRejected, name)
		return cs
	}
	if containsRejection(cs.Reject, name) {
		cs.Reject = removeRejection(cs.Reject, name)
		cs.Approve = appendUnique(cs.Approve, name)
		return cs
	}
	cs.MoveToRegistered = appendUnique(cs.MoveToRegistered, name)
	return cs
}

// StageMoveToRejected stages a registered name's demotion. Mirror image of
// StageMoveToRegistered: an opposite staged move cancels, a staged approval
// flips into a rejection.
func (cs ChangeSet) StageMoveToRejected(name, reason string) ChangeSet {
	if slices.Contains(cs.MoveToRegistered, name) {
		cs.MoveToRegistered = remove(cs.MoveToRegistered, name)
		return cs
	}
	if slices.Contains(cs.Approve, name) {
		cs.Approve = remove(cs.Approve, name)
		cs.Reject = appendRejection(cs.Reject, name, reason)
		return cs
	}
	cs.MoveToRejected = appendRejection(cs.MoveToRejected, name, reason)
	return cs
}

// StageAddRequest queues a brand-new name for registration.
func (cs ChangeSet) StageAddRequest(name string) ChangeSet {
	cs.AddRequests = appendUnique(cs.AddRequests, name)
	return cs
}

// StageDeletePending stages removal of a pending name. Deletes dominate:
// the name is stripped from every other list first.
func (cs ChangeSet) StageDeletePending(name string) ChangeSet {
	cs = cs.strip(name)
	cs.DeletePending = appendUnique(cs.DeletePending, name)
	return cs
}

// StageDeleteRegistered stages removal of a registered name.
func (cs ChangeSet) StageDeleteRegistered(name string) ChangeSet {
	cs = cs.strip(name)
	cs.DeleteRegistered = appendUnique(cs.DeleteRegistered, name)
	return cs
}

// StageDeleteRejected stages removal of a rejected name.
func (cs ChangeSet) StageDeleteRejected(name string) ChangeSet {
	cs = cs.strip(name)
	cs.DeleteRejected = appendUnique(cs.DeleteRejected, name)
	return cs
}

// IsEmpty reports whether nothing is staged.
func (cs ChangeSet) IsEmpty() bool {
	return cs.Count() == 0
}

// Count returns the number of staged operations.
func (cs ChangeSet) Count() int {
	return len(cs.Approve) + len(cs.Reject) +
		len(cs.MoveToRegistered) + len(cs.MoveToRejected) +
		len(cs.AddRequests) +
		len(cs.DeletePending) + len(cs.DeleteRegistered) + len(cs.DeleteRejected)
}

// Deletes returns every name staged for deletion, whichever list holds it.
func (cs ChangeSet) Deletes() []string {
	out := make([]string, 0, len(cs.DeletePending)+len(cs.DeleteRegistered)+len(cs.DeleteRejected))
	out = append(out, cs.DeletePending...)
	out = append(out, cs.DeleteRegistered...)
	out = append(out, cs.DeleteRejected...)
	return out
}

// Consistent reports whether the set honors the at-most-one-list invariant.
// Sets built through the staging methods always do; sets decoded from a
// request body are checked before commit.
func (cs ChangeSet) Consistent() bool {
	seen := make(map[string]int)
	track := func(names []string) {
		for _, n := range names {
			seen[n]++
		}
	}
	track(cs.Approve)
	for _, r := range cs.Reject {
		seen[r.Name]++
	}
	track(cs.MoveToRegistered)
	for _, r := range cs.MoveToRejected {
		seen[r.Name]++
	}
	track(cs.Deletes())
	for _, count := range seen {
		if count > 1 {
			return false
		}
	}
	return true
}

func (cs ChangeSet) strip(name string) ChangeSet {
	cs.Approve = remove(cs.Approve, name)
	cs.Reject = removeRejection(cs.Reject, name)
	cs.MoveToRegistered = remove(cs.MoveToRegistered, name)
	cs.MoveToRejected = removeRejection(cs.MoveToRejected, name)
	cs.AddRequests = remove(cs.AddRequests, name)
	cs.DeletePending = remove(cs.DeletePending, name)
	cs.DeleteRegistered = remove(cs.DeleteRegistered, name)
	cs.DeleteRejected = remove(cs.DeleteRejected, name)
	return cs
}

func appendUnique(names []string, name string) []string {
	if slices.Contains(names, name) {
		return names
	}
	return append(slices.Clone(names), name)
}

func remove(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func appendRejection(rejections []Rejection, name, reason string) []Rejection {
	out := removeRejection(rejections, name)
	return append(out, Rejection{Name: name, Reason: reason})
}

func removeRejection(rejections []Rejection, name string) []Rejection {
	out := make([]Rejection, 0, len(rejections))
	for _, r := range rejections {
		if r.Name != name {
			out = append(out, r)
		}
	}
	return out
}

func containsRejection(rejections []Rejection, name string) bool {
	return slices.ContainsFunc(rejections, func(r Rejection) bool {
		return r.Name == name
	})
}
