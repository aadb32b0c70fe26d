package fork

import "ForkGo/sipmsg"

// IncomingTransaction is the upstream transaction the fork engine
// replies to. It stands in for the underlying SIP transaction layer as
// an external collaborator — the transport package implements it over
// a real UDP socket, tests implement it with a recorder.
type IncomingTransaction interface {
	// Request is the original request that triggered the fork.
	Request() *sipmsg.Request
	// SendResponse delivers resp upstream on this transaction.
	SendResponse(resp *sipmsg.Response)
}

// OutgoingTransaction is the per-branch transaction a BranchInfo owns.
type OutgoingTransaction interface {
	// Request is the request this transaction sent on the branch.
	Request() *sipmsg.Request
	// SendCancel sends a CANCEL-equivalent on this transaction.
	SendCancel()
}

// Transport creates outgoing transactions and wires their responses
// back into the fork engine. ForkContext.AddBranch calls
// CreateClientTransaction to hand the outgoing request to the
// transport layer; the transport is responsible for eventually
// calling Router.ProcessResponse (or synthesizing a
// BranchTimeout/TransportFailure response) as responses arrive on the
// wire.
type Transport interface {
	CreateClientTransaction(req *sipmsg.Request) (OutgoingTransaction, error)
}

// PushNotifier delivers a push notification for a branch whose contact
// registered with a push token (BranchInfo.PushInfo != nil), waking a
// push-capable client so it dials back in on the actual transport.
// Sending the notification itself is outside the fork engine; a nil
// Router.pushNotifier simply skips it and relies on PushResponseTimeout
// expiring the branch instead.
type PushNotifier interface {
	Notify(branch *BranchInfo) error
}
