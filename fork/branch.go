package fork

import (
	"ForkGo/global"
	"ForkGo/sipmsg"
)

// BranchInfo is the per-destination record: a single outgoing attempt
// for the incoming request, tied to a stable uid so a re-registering
// device supersedes its own earlier branch instead of piling up a
// duplicate.
type BranchInfo struct {
	UID         string
	Request     *sipmsg.Request
	Transaction OutgoingTransaction
	LastResponse *sipmsg.Response

	// PushInfo carries the registrar's opaque push token for this
	// branch's contact, nil if it is directly reachable. A non-nil
	// value is what makes Variant.OnNewBranch arm a push timer.
	PushInfo *string

	// pushTimerStop, when non-nil, stops the per-branch grace period
	// started for a push-notified contact; it is stopped as soon as any
	// final response lands on this branch.
	pushTimerStop func()
	// cancelled marks a branch CANCEL was sent on. It is only recorded;
	// responses arriving later on the branch are handled the same way
	// whether it is set or not.
	cancelled bool
}

// NewBranchInfo constructs a BranchInfo for req, tied to uid. Fork
// variants may override creation via Variant.CreateBranchInfo to
// return an embedding struct with extra state (e.g. push tokens).
func NewBranchInfo(req *sipmsg.Request, uid string) *BranchInfo {
	return &BranchInfo{Request: req, UID: uid}
}

// Status returns the branch's last response status, or 0 if none has
// arrived yet.
func (b *BranchInfo) Status() int {
	if b.LastResponse == nil {
		return 0
	}
	return b.LastResponse.StatusCode
}

// IsAnswered reports whether this branch has a final (>=200) response.
func (b *BranchInfo) IsAnswered() bool {
	return b.LastResponse != nil && global.IsFinal(b.LastResponse.StatusCode)
}

// IsPending reports whether this branch is still awaiting a final
// response (i.e. eligible for CANCEL).
func (b *BranchInfo) IsPending() bool {
	return b.LastResponse == nil || !global.IsFinal(b.LastResponse.StatusCode)
}

// recordResponse updates lastResponse in place. Delivering the same
// response twice is a no-op beyond this update, since the caller
// decides separately whether to forward.
func (b *BranchInfo) recordResponse(resp *sipmsg.Response) {
	b.LastResponse = resp
	if global.IsFinal(resp.StatusCode) && b.pushTimerStop != nil {
		b.pushTimerStop()
		b.pushTimerStop = nil
	}
}
