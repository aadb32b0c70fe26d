package fork

import (
	"time"

	"ForkGo/global"
	"ForkGo/sipmsg"
)

// Variant is the capability set that separates one fork policy from
// another — INVITE-style commit-on-first-2xx versus MESSAGE-style
// aggregate-until-done — injected into a single concrete ForkContext
// rather than expressed as a class hierarchy. The core state machine
// in context.go/lifecycle.go/selection.go is identical across
// variants; only these hooks differ.
type Variant interface {
	// CreateBranchInfo allocates a branch record for req/uid. May
	// return an embedding type carrying extra per-branch state.
	CreateBranchInfo(req *sipmsg.Request, uid string) *BranchInfo
	// OnResponse runs after BranchInfo.lastResponse has been updated,
	// before shouldFinish is checked. An INVITE-style variant forwards
	// and cancels here directly; an aggregating variant only relays the
	// first provisional response.
	OnResponse(fc *ForkContext, branch *BranchInfo, resp *sipmsg.Response)
	// OnNewBranch runs once, right after a branch is added and handed
	// to the transport. A positive return value arms a per-branch push
	// timer for that duration, synthesizing a timeout response on the
	// branch if it expires with nothing answered; zero arms none.
	OnNewBranch(fc *ForkContext, branch *BranchInfo) time.Duration
	// ShouldFinish decides whether the fork is done aggregating.
	ShouldFinish(fc *ForkContext) bool
	// Finalize runs once, the moment ShouldFinish first returns true,
	// before setFinished — the last chance to forward a response.
	Finalize(fc *ForkContext)
	// OnLateTimeout runs when lateTimer expires.
	OnLateTimeout(fc *ForkContext)
	// NoBranchesResponse is forwarded when the fork starts with zero
	// branches and forkLate is false.
	NoBranchesResponse() *sipmsg.Response
}

// Base implements every Variant hook with the aggregate-until-done
// default, so a concrete variant only overrides what it changes.
type Base struct{}

func (Base) CreateBranchInfo(req *sipmsg.Request, uid string) *BranchInfo {
	return NewBranchInfo(req, uid)
}

func (Base) OnResponse(fc *ForkContext, branch *BranchInfo, resp *sipmsg.Response) {
	if global.IsProvisional(resp.StatusCode) {
		fc.forwardProvisional(resp)
	}
}

// OnNewBranch arms a push timer, using the configured
// PushResponseTimeout, for any branch whose contact registered with a
// push token; a directly-reachable contact gets no timer beyond its
// own transaction semantics.
func (Base) OnNewBranch(fc *ForkContext, branch *BranchInfo) time.Duration {
	if branch.PushInfo == nil {
		return 0
	}
	return fc.config.PushResponseTimeout
}

// ShouldFinish defaults to every branch having answered.
func (Base) ShouldFinish(fc *ForkContext) bool {
	return fc.AllBranchesAnswered()
}

// Finalize defaults to forwarding whichever branch's response ranks
// best once aggregation is complete.
func (Base) Finalize(fc *ForkContext) {
	if best := fc.findBestBranch(); best != nil {
		fc.forwardBranchResponse(best)
	}
}

func (Base) OnLateTimeout(fc *ForkContext) {
	fc.DefaultOnLateTimeout()
}

func (Base) NoBranchesResponse() *sipmsg.Response {
	return sipmsg.NewResponse(480, "Temporarily Unavailable")
}

// MessageVariant aggregates until every branch has a final response,
// then forwards the best one. It is exactly Base with no overrides;
// kept as a named type so callers are explicit about which policy
// they are choosing.
type MessageVariant struct{ Base }

// BasicVariant is the plain aggregate-until-done policy for requests
// with no special forking semantics, identical to MessageVariant: the
// Router builds their outgoing requests the same way and they share
// the same aggregation policy; only the name recorded for the fork
// differs.
type BasicVariant struct{ Base }

// InviteVariant is the call-forking policy: commit on the first 2xx
// (forward, cancel the rest, finish immediately instead of waiting
// for every branch), and treat an un-shared 6xx the same way.
type InviteVariant struct{ Base }

func (InviteVariant) OnResponse(fc *ForkContext, branch *BranchInfo, resp *sipmsg.Response) {
	sc := resp.StatusCode
	switch {
	case global.IsProvisional(sc):
		fc.forwardProvisional(resp)
	case global.IsPositive(sc):
		fc.forwardBranchResponse(branch)
	case global.IsNegativeGlobal(sc) && !fc.config.ForkNoGlobalDecline:
		fc.forwardBranchResponse(branch)
	}
}

// ShouldFinish commits as soon as a 2xx or fork-terminating 6xx has
// already been forwarded; otherwise falls back to the aggregate
// default so a fork with only negative finals still completes.
func (InviteVariant) ShouldFinish(fc *ForkContext) bool {
	if last := fc.lastResponseSent; last != nil {
		sc := last.StatusCode
		if global.IsPositive(sc) || global.IsNegativeGlobal(sc) {
			return true
		}
	}
	return fc.AllBranchesAnswered()
}

// Finalize is a no-op for InviteVariant: OnResponse already forwarded
// the committing response when ShouldFinish first went true. If
// instead every branch answered negatively without a committing
// response, fall back to the aggregate best-branch pick.
func (InviteVariant) Finalize(fc *ForkContext) {
	if fc.lastResponseSent != nil {
		return
	}
	if best := fc.findBestBranch(); best != nil {
		fc.forwardBranchResponse(best)
	}
}

func (InviteVariant) NoBranchesResponse() *sipmsg.Response {
	return sipmsg.NewResponse(480, "Temporarily Unavailable")
}
