package fork_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ForkGo/eventloop"
	"ForkGo/fork"
	"ForkGo/registrar"
	"ForkGo/sipmsg"
	"ForkGo/timers"
)

type fakeIncomingTx struct {
	req       *sipmsg.Request
	responses []*sipmsg.Response
}

func (f *fakeIncomingTx) Request() *sipmsg.Request { return f.req }

func (f *fakeIncomingTx) SendResponse(resp *sipmsg.Response) {
	f.responses = append(f.responses, resp)
}

type fakeOutgoingTx struct {
	req       *sipmsg.Request
	cancelled bool
}

func (f *fakeOutgoingTx) Request() *sipmsg.Request { return f.req }

func (f *fakeOutgoingTx) SendCancel() { f.cancelled = true }

type fakeTransport struct {
	failNext bool
	created  []*fakeOutgoingTx
}

func (f *fakeTransport) CreateClientTransaction(req *sipmsg.Request) (fork.OutgoingTransaction, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("simulated transport failure")
	}
	tx := &fakeOutgoingTx{req: req}
	f.created = append(f.created, tx)
	return tx, nil
}

type fakeListener struct {
	finished []*fork.ForkContext
}

func (l *fakeListener) OnForkContextFinished(ctx *fork.ForkContext) {
	l.finished = append(l.finished, ctx)
}

type fakePushNotifier struct {
	notified []*fork.BranchInfo
}

func (n *fakePushNotifier) Notify(branch *fork.BranchInfo) error {
	n.notified = append(n.notified, branch)
	return nil
}

func newHarness(t *testing.T) (*eventloop.Loop, *timers.Service) {
	loop := eventloop.New(16)
	t.Cleanup(loop.Stop)
	return loop, timers.New(loop)
}

func newRequest(callID string) *sipmsg.Request {
	return &sipmsg.Request{
		Method:     sipmsg.INVITE,
		RequestURI: "sip:alice@example.com",
		CallID:     callID,
		Headers:    sipmsg.NewHeaders(),
	}
}

func waitFinished(t *testing.T, fc *fork.ForkContext) {
	require.Eventually(t, func() bool {
		return fc.IsFinished()
	}, time.Second, 2*time.Millisecond, "fork context never reached a finished state")
}

func TestSingleBranchAnsweredForwardsAndFinishes(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-1")}
	listener := &fakeListener{}

	fc := fork.Create(newRequest("call-1"), incoming, cfg, tsvc, fork.InviteVariant{}, listener)
	transport := &fakeTransport{}
	branch, err := fc.AddBranch(transport, newRequest("call-1"), "uid-1", nil)
	require.NoError(t, err)

	fc.OnResponse(branch, sipmsg.NewResponse(200, "OK"))

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 200, incoming.responses[0].StatusCode)
	require.Len(t, listener.finished, 1)
}

func TestSecondBranchCancelledOnFirstSuccess(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-2")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-2"), incoming, cfg, tsvc, fork.InviteVariant{}, &fakeListener{})
	b1, err := fc.AddBranch(transport, newRequest("call-2"), "uid-a", nil)
	require.NoError(t, err)
	b2, err := fc.AddBranch(transport, newRequest("call-2"), "uid-b", nil)
	require.NoError(t, err)

	fc.OnResponse(b1, sipmsg.NewResponse(200, "OK"))

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 200, incoming.responses[0].StatusCode)
	require.True(t, transport.created[1].cancelled, "the losing branch should have been cancelled")
	_ = b2
}

func TestForkNoGlobalDeclineFallsBackToBestNegative(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.ForkNoGlobalDecline = true
	incoming := &fakeIncomingTx{req: newRequest("call-3")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-3"), incoming, cfg, tsvc, fork.InviteVariant{}, &fakeListener{})
	b1, err := fc.AddBranch(transport, newRequest("call-3"), "uid-a", nil)
	require.NoError(t, err)
	b2, err := fc.AddBranch(transport, newRequest("call-3"), "uid-b", nil)
	require.NoError(t, err)

	fc.OnResponse(b1, sipmsg.NewResponse(603, "Decline"))
	fc.OnResponse(b2, sipmsg.NewResponse(404, "Not Found"))

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 404, incoming.responses[0].StatusCode, "a held-back global decline should not outrank an ordinary negative final")
}

func TestDuplicateUIDSupersedesPriorBranch(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-4")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-4"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	_, err := fc.AddBranch(transport, newRequest("call-4"), "uid-dup", nil)
	require.NoError(t, err)
	require.Len(t, fc.Branches(), 1)

	_, err = fc.AddBranch(transport, newRequest("call-4"), "uid-dup", nil)
	require.NoError(t, err)

	require.Len(t, fc.Branches(), 1, "a re-registered uid should supersede, not accumulate")
	require.True(t, transport.created[0].cancelled, "the superseded branch's transaction should be cancelled")
}

func TestTransportFailureSynthesizesServiceUnavailable(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-5")}
	transport := &fakeTransport{failNext: true}

	fc := fork.Create(newRequest("call-5"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	branch, err := fc.AddBranch(transport, newRequest("call-5"), "uid-only", nil)
	require.NoError(t, err)
	require.Equal(t, 503, branch.Status())

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 503, incoming.responses[0].StatusCode)
}

func TestNoBranchesAtCreationSendsImmediateNegativeFinal(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.ForkLate = false
	incoming := &fakeIncomingTx{req: newRequest("call-6")}

	fc := fork.Create(newRequest("call-6"), incoming, cfg, tsvc, fork.InviteVariant{}, &fakeListener{})
	fc.NoBranchesAtCreation()

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 480, incoming.responses[0].StatusCode)
}

func TestLateRegistrationAcceptedOnlyForNewUID(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.ForkLate = true
	cfg.DeliveryTimeout = time.Hour
	incoming := &fakeIncomingTx{req: newRequest("call-7")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-7"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	_, err := fc.AddBranch(transport, newRequest("call-7"), "uid-existing", nil)
	require.NoError(t, err)

	require.True(t, fc.OnNewRegister("sip:bob@example.com", "uid-new"), "a fresh contact should be accepted while forking late")

	bobReq := newRequest("call-7")
	bobReq.RequestURI = "sip:bob@example.com"
	_, err = fc.AddBranch(transport, bobReq, "uid-new", nil)
	require.NoError(t, err)

	require.False(t, fc.OnNewRegister("sip:bob@example.com", "uid-new"), "the same uid should not be accepted twice")
	require.False(t, fc.OnNewRegister("sip:carol@example.com", "uid-existing"), "a reused uid should not be accepted")
}

func TestCancelIsIdempotentAndOnlySignalsPendingBranchesOnce(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-8")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-8"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	_, err := fc.AddBranch(transport, newRequest("call-8"), "uid-only", nil)
	require.NoError(t, err)

	fc.Cancel()
	fc.Cancel()

	require.True(t, transport.created[0].cancelled)
}

func TestRingingForwardedBeforeFinalAnswer(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-9")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-9"), incoming, cfg, tsvc, fork.InviteVariant{}, &fakeListener{})
	branch, err := fc.AddBranch(transport, newRequest("call-9"), "uid-1", nil)
	require.NoError(t, err)

	fc.OnResponse(branch, sipmsg.NewResponse(180, "Ringing"))
	require.Len(t, incoming.responses, 1, "ringing should be relayed immediately")
	require.Equal(t, 180, incoming.responses[0].StatusCode)
	require.False(t, fc.IsFinished(), "a provisional response must not finish the fork")

	fc.OnResponse(branch, sipmsg.NewResponse(200, "OK"))
	waitFinished(t, fc)
	require.Len(t, incoming.responses, 2)
	require.Equal(t, 200, incoming.responses[1].StatusCode)
}

func TestOnlyFirstRingingIsForwarded(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	incoming := &fakeIncomingTx{req: newRequest("call-10")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-10"), incoming, cfg, tsvc, fork.InviteVariant{}, &fakeListener{})
	b1, err := fc.AddBranch(transport, newRequest("call-10"), "uid-a", nil)
	require.NoError(t, err)
	b2, err := fc.AddBranch(transport, newRequest("call-10"), "uid-b", nil)
	require.NoError(t, err)

	fc.OnResponse(b1, sipmsg.NewResponse(180, "Ringing"))
	fc.OnResponse(b2, sipmsg.NewResponse(183, "Session Progress"))

	require.Len(t, incoming.responses, 1, "a second branch ringing should not ring the caller twice")
	require.Equal(t, 180, incoming.responses[0].StatusCode)
}

func TestPushCapableBranchTimesOutTo408(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.PushResponseTimeout = 5 * time.Millisecond
	incoming := &fakeIncomingTx{req: newRequest("call-11")}
	transport := &fakeTransport{}

	pushToken := "push-token-123"
	fc := fork.Create(newRequest("call-11"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	_, err := fc.AddBranch(transport, newRequest("call-11"), "uid-push", &pushToken)
	require.NoError(t, err)

	waitFinished(t, fc)
	require.Len(t, incoming.responses, 1)
	require.Equal(t, 408, incoming.responses[0].StatusCode, "an unanswered push branch should time out to a 408")
}

func TestDirectlyReachableBranchGetsNoPushTimer(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.PushResponseTimeout = 5 * time.Millisecond
	incoming := &fakeIncomingTx{req: newRequest("call-11b")}
	transport := &fakeTransport{}

	fc := fork.Create(newRequest("call-11b"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	_, err := fc.AddBranch(transport, newRequest("call-11b"), "uid-direct", nil)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, incoming.responses, "a branch with no push token must not be timed out by PushResponseTimeout")
}

func TestPushNotifierReceivesPushCapableBranches(t *testing.T) {
	reg := registrar.NewInMemory()
	loop, tsvc := newHarness(t)
	notifier := &fakePushNotifier{}

	router := fork.NewRouter(loop, tsvc, fork.NewConfigStore("no-such-config-file.json"), reg, nil)
	router.SetPushNotifier(notifier)

	pushToken := "push-token-789"
	reg.Register("sip:dana@example.com", registrar.Contact{URI: "sip:dana@10.0.0.9", UID: "uid-dana", PushInfo: &pushToken}, 3600)

	incoming := &fakeIncomingTx{req: newRequest("call-13")}
	incoming.req.RequestURI = "sip:dana@example.com"
	transport := &fakeTransport{}
	router.HandleIncomingRequest(transport, incoming.req, incoming)

	require.Eventually(t, func() bool {
		return len(notifier.notified) == 1
	}, time.Second, 2*time.Millisecond, "the router should notify a push-capable contact's branch")
}

func TestPushTimerDoesNotFireAfterBranchAnswered(t *testing.T) {
	_, tsvc := newHarness(t)
	cfg := fork.DefaultConfig()
	cfg.PushResponseTimeout = 10 * time.Millisecond
	incoming := &fakeIncomingTx{req: newRequest("call-12")}
	transport := &fakeTransport{}

	pushToken := "push-token-456"
	fc := fork.Create(newRequest("call-12"), incoming, cfg, tsvc, fork.BasicVariant{}, &fakeListener{})
	branch, err := fc.AddBranch(transport, newRequest("call-12"), "uid-push", &pushToken)
	require.NoError(t, err)

	fc.OnResponse(branch, sipmsg.NewResponse(200, "OK"))
	waitFinished(t, fc)

	time.Sleep(20 * time.Millisecond)
	require.Len(t, incoming.responses, 1, "the push timer must not overwrite an already-forwarded answer")
	require.Equal(t, 200, incoming.responses[0].StatusCode)
}
