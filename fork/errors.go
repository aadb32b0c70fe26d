package fork

import "ForkGo/global"

// Error codes for conditions the fork engine recovers from locally —
// none is ever surfaced to a caller except as a forwarded SIP
// response.
const (
	ErrContextFinished = 1 + iota // operation attempted on a terminated fork
	ErrDuplicateBranch            // addBranch with an already-present uid
	ErrTransportFailure           // a branch's transaction failed to send
	ErrBranchTimeout              // a branch's transaction timed out
	ErrNoBranches                 // lateTimer expired with no branch ever responding
)

// ErrContextFinishedErr is returned by addBranch once the context has
// committed to setFinished().
var ErrContextFinishedErr = global.NewError(ErrContextFinished, "fork context already finished")
