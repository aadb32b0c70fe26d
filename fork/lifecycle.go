package fork

import (
	"time"

	"ForkGo/global"
	"ForkGo/sipmsg"
)

// AddBranch allocates a branch for outgoingRequest tied to uid, hands
// it to the transport, and appends it to branches. If a branch with
// the same uid already exists it is cancelled and removed first —
// a re-registering contact supersedes its own earlier branch rather
// than piling up a duplicate. pushInfo is the contact's opaque push
// token, nil if it registered directly reachable. Returns
// ErrContextFinishedErr once the context has committed to
// setFinished().
func (fc *ForkContext) AddBranch(transport Transport, outgoingRequest *sipmsg.Request, uid string, pushInfo *string) (*BranchInfo, error) {
	if fc.State() != StateActive {
		return nil, ErrContextFinishedErr
	}

	if old := fc.findBranchByUID(uid); old != nil {
		fc.supersede(old)
	}

	branch := fc.variant.CreateBranchInfo(outgoingRequest, uid)
	branch.PushInfo = pushInfo

	tx, err := transport.CreateClientTransaction(outgoingRequest)
	if err != nil {
		global.LogWarning(global.LTFork, "transport failed to create client transaction: "+err.Error())
		branch.recordResponse(sipmsg.NewResponse(503, "Service Unavailable"))
		fc.branches = append(fc.branches, branch)
		fc.onResponseInternal(branch, branch.LastResponse)
		return branch, nil
	}
	branch.Transaction = tx

	fc.branches = append(fc.branches, branch)
	if timeout := fc.variant.OnNewBranch(fc, branch); timeout > 0 {
		fc.startPushTimer(branch, timeout)
	}

	return branch, nil
}

// startPushTimer arms a per-branch grace period for a push-notified
// contact. If it expires with the branch still pending, a 408 is
// synthesized for that branch alone, the same way a transport failure
// synthesizes a 503 in AddBranch above.
func (fc *ForkContext) startPushTimer(branch *BranchInfo, timeout time.Duration) {
	handle := fc.timers.After(timeout, func() { fc.onPushTimeout(branch) })
	branch.pushTimerStop = handle.Stop
}

func (fc *ForkContext) onPushTimeout(branch *BranchInfo) {
	if fc.State() != StateActive || !branch.IsPending() {
		return
	}
	fc.onResponseInternal(branch, sipmsg.NewResponse(408, "Request Timeout"))
}

func (fc *ForkContext) findBranchByUID(uid string) *BranchInfo {
	for _, b := range fc.branches {
		if b.UID == uid {
			return b
		}
	}
	return nil
}

func (fc *ForkContext) findBranchByTransaction(tx OutgoingTransaction) *BranchInfo {
	for _, b := range fc.branches {
		if b.Transaction == tx {
			return b
		}
	}
	return nil
}

// supersede cancels old's transaction (if still pending) and drops it
// from branches, making way for a fresh branch with the same uid.
func (fc *ForkContext) supersede(old *BranchInfo) {
	if old.IsPending() && old.Transaction != nil {
		old.Transaction.SendCancel()
	}
	for i, b := range fc.branches {
		if b == old {
			fc.branches = global.RemoveAt(fc.branches, i)
			return
		}
	}
}

// OnNewRegister accepts a late branch iff forkLate is true, lateTimer
// has not expired, no existing branch shares uid, and no existing
// branch already targets destURI.
func (fc *ForkContext) OnNewRegister(destURI, uid string) bool {
	if !fc.config.ForkLate || fc.lateTimerExpired || fc.State() != StateActive {
		return false
	}
	if fc.findBranchByUID(uid) != nil {
		return false
	}
	for _, b := range fc.branches {
		if b.Request != nil && b.Request.RequestURI == destURI {
			return false
		}
	}
	return true
}

func (fc *ForkContext) onLateTimerFired() {
	fc.lateTimerExpired = true
	fc.variant.OnLateTimeout(fc)
}

// DefaultOnLateTimeout forwards the best current response, or 408 if
// none exists yet, then finishes.
func (fc *ForkContext) DefaultOnLateTimeout() {
	if fc.State() != StateActive {
		return
	}
	if best := fc.findBestBranch(); best != nil {
		fc.forwardBranchResponse(best)
	} else {
		fc.forwardSynthesized(sipmsg.NewResponse(408, "Request Timeout"))
	}
	fc.setFinished()
}

// Cancel sends a CANCEL-equivalent to every pending branch. It does
// not itself finish the context — shouldFinish() still governs that,
// once pending CANCEL acknowledgements arrive. Cancelling an
// already-cancelled fork is a no-op.
func (fc *ForkContext) Cancel() {
	if fc.cancelled {
		return
	}
	fc.cancelled = true
	for _, b := range fc.branches {
		if b.IsPending() && b.Transaction != nil {
			b.Transaction.SendCancel()
			b.cancelled = true
		}
	}
}

// OnResponse is the entry point the Router calls once it has located
// the owning ForkContext and BranchInfo for an incoming response. It
// updates the branch in place, delegates to the variant's aggregation
// policy, and checks shouldFinish().
func (fc *ForkContext) OnResponse(branch *BranchInfo, resp *sipmsg.Response) {
	if fc.State() != StateActive {
		return
	}
	fc.onResponseInternal(branch, resp)
}

func (fc *ForkContext) onResponseInternal(branch *BranchInfo, resp *sipmsg.Response) {
	branch.recordResponse(resp)
	fc.variant.OnResponse(fc, branch, resp)
	if fc.State() == StateActive && fc.variant.ShouldFinish(fc) {
		fc.variant.Finalize(fc)
		fc.setFinished()
	}
}

// NoBranchesAtCreation handles the zero-contact boundary case: a
// request forked with no contacts and forkLate=false gets an
// immediate negative final response rather than waiting on a
// lateTimer that was never armed.
func (fc *ForkContext) NoBranchesAtCreation() {
	if len(fc.branches) > 0 || fc.config.ForkLate {
		return
	}
	fc.forwardSynthesized(fc.variant.NoBranchesResponse())
	fc.setFinished()
}

// AllBranchesAnswered reports whether every branch has a final
// (>=200) response. It reports false for a fork with no branches.
func (fc *ForkContext) AllBranchesAnswered() bool {
	if len(fc.branches) == 0 {
		return false
	}
	for _, b := range fc.branches {
		if !b.IsAnswered() {
			return false
		}
	}
	return true
}
