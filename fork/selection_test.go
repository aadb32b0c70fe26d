package fork

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ForkGo/sipmsg"
)

func branchWithStatus(uid string, sc int) *BranchInfo {
	b := NewBranchInfo(&sipmsg.Request{}, uid)
	if sc != 0 {
		b.LastResponse = sipmsg.NewResponse(sc, "")
	}
	return b
}

func TestFindBestBranchPrefers2xxOverEverything(t *testing.T) {
	fc := &ForkContext{config: DefaultConfig()}
	fc.branches = []*BranchInfo{
		branchWithStatus("a", 486),
		branchWithStatus("b", 200),
		branchWithStatus("c", 603),
	}

	best := fc.findBestBranch()
	require.NotNil(t, best)
	require.Equal(t, "b", best.UID)
}

func TestFindBestBranchTiesBrokenByInsertionOrder(t *testing.T) {
	fc := &ForkContext{config: DefaultConfig()}
	fc.branches = []*BranchInfo{
		branchWithStatus("first-500", 500),
		branchWithStatus("second-500", 500),
	}

	best := fc.findBestBranch()
	require.Equal(t, "first-500", best.UID, "equal-ranked candidates should keep the earliest insertion")
}

func TestFindBestBranchPrefersHigherNegativeCode(t *testing.T) {
	fc := &ForkContext{config: DefaultConfig()}
	fc.branches = []*BranchInfo{
		branchWithStatus("a", 404),
		branchWithStatus("b", 500),
	}

	best := fc.findBestBranch()
	require.Equal(t, "b", best.UID)
}

func TestFindBestBranchReturnsNilWithNoResponses(t *testing.T) {
	fc := &ForkContext{config: DefaultConfig()}
	fc.branches = []*BranchInfo{
		branchWithStatus("a", 0),
	}

	require.Nil(t, fc.findBestBranch())
}

func TestFindBestBranchUrgentCodeBeatsOrdinaryNegative(t *testing.T) {
	fc := &ForkContext{config: DefaultConfig()}
	fc.branches = []*BranchInfo{
		branchWithStatus("a", 500),
		branchWithStatus("b", 486), // in DefaultUrgentCodes
	}

	best := fc.findBestBranch()
	require.Equal(t, "b", best.UID)
}
