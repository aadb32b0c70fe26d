package fork

import (
	"ForkGo/global"
	"ForkGo/sipmsg"
)

// findBestBranch picks the response to forward when a fork has more
// than one answered branch: 2xx wins outright; else a 6xx wins unless
// forkNoGlobalDecline; else the first urgent code wins; else the
// numerically-highest 4xx/5xx wins, ties broken by insertion order
// throughout. Returns nil if no branch has any response yet.
func (fc *ForkContext) findBestBranch() *BranchInfo {
	var best2xx, best6xx, bestUrgent, bestWorst *BranchInfo

	for _, b := range fc.branches {
		sc := b.Status()
		if sc == 0 {
			continue
		}
		switch {
		case global.IsPositive(sc):
			if best2xx == nil {
				best2xx = b
			}
		case global.IsNegativeGlobal(sc):
			if best6xx == nil {
				best6xx = b
			}
		}
		if bestUrgent == nil && fc.config.IsUrgent(sc) {
			bestUrgent = b
		}
		if (global.IsNegativeClient(sc) || global.IsNegativeServer(sc)) && (bestWorst == nil || sc > bestWorst.Status()) {
			bestWorst = b
		}
	}

	if best2xx != nil {
		return best2xx
	}
	if best6xx != nil && !fc.config.ForkNoGlobalDecline {
		return best6xx
	}
	if bestUrgent != nil {
		return bestUrgent
	}
	if bestWorst != nil {
		return bestWorst
	}
	if best6xx != nil {
		// forkNoGlobalDecline held the 6xx back above; with nothing else
		// to offer, it is still the only answer available.
		return best6xx
	}
	return nil
}

// forwardBranchResponse forwards branch's lastResponse upstream,
// cancelling every other pending branch when it is a 2xx or a
// fork-terminating 6xx.
func (fc *ForkContext) forwardBranchResponse(branch *BranchInfo) {
	sc := branch.Status()
	fc.forwardSynthesized(branch.LastResponse)
	if global.IsPositive(sc) || (global.IsNegativeGlobal(sc) && !fc.config.ForkNoGlobalDecline) {
		fc.cancelOtherPendingBranches(branch)
	}
}

func (fc *ForkContext) cancelOtherPendingBranches(keep *BranchInfo) {
	for _, b := range fc.branches {
		if b == keep {
			continue
		}
		if b.IsPending() && b.Transaction != nil {
			b.Transaction.SendCancel()
			b.cancelled = true
		}
	}
}

// forwardProvisional relays the first provisional (1xx) response
// received on any branch upstream. It never touches lastResponseSent
// and never cancels other branches — ringing is advisory, not a
// commitment to a branch the way a final response is.
func (fc *ForkContext) forwardProvisional(resp *sipmsg.Response) {
	if fc.State() != StateActive || fc.provisionalSent || fc.lastResponseSent != nil {
		return
	}
	fc.provisionalSent = true
	out := resp
	if fc.config.RemoveToTag {
		out = resp.WithoutToTag()
	}
	if fc.incomingTransaction != nil {
		fc.incomingTransaction.SendResponse(out)
	}
}

// forwardSynthesized forwards resp upstream, applying removeToTag and
// forkOneResponse. Once the fork has been cancelled only a 2xx is
// forwarded.
func (fc *ForkContext) forwardSynthesized(resp *sipmsg.Response) {
	if fc.State() != StateActive {
		return
	}
	if fc.cancelled && !global.IsPositive(resp.StatusCode) {
		return
	}
	if fc.config.ForkOneResponse && fc.lastResponseSent != nil && global.IsFinal(fc.lastResponseSent.StatusCode) {
		return
	}
	out := resp
	if fc.config.RemoveToTag {
		out = resp.WithoutToTag()
	}
	fc.lastResponseSent = out
	if fc.incomingTransaction != nil {
		fc.incomingTransaction.SendResponse(out)
	}
}
