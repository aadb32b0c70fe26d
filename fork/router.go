package fork

import (
	"time"

	"ForkGo/cdr"
	"ForkGo/eventloop"
	"ForkGo/global"
	"ForkGo/metrics"
	"ForkGo/registrar"
	"ForkGo/sipmsg"
	"ForkGo/timers"
)

// outgoingEntry is what byOutgoingTx resolves a transaction to: the
// owning context plus the specific branch, so ProcessResponse can
// update both without a second lookup.
type outgoingEntry struct {
	ctx    *ForkContext
	branch *BranchInfo
}

// Router is the single top-level collaborator a transport/registrar
// binds to: it owns every live ForkContext, dispatches incoming
// requests/responses/cancels to the right one, and reacts to new
// registrations for late forking. HandleIncomingRequest, ProcessResponse,
// and ProcessCancel are all safe to call from any goroutine — each
// posts its actual work onto loop itself, so every touch of
// ForkContext/BranchInfo state is serialized there alongside the
// timer callbacks.
type Router struct {
	loop      *eventloop.Loop
	timers    *timers.Service
	config    *ConfigStore
	registrar registrar.Registrar
	metrics   *metrics.Metrics

	byCallID     *global.ConcurrentMapMutex[string, *ForkContext]
	byIncomingTx *global.ConcurrentMapMutex[IncomingTransaction, *ForkContext]
	byOutgoingTx *global.ConcurrentMapMutex[OutgoingTransaction, outgoingEntry]

	createdAt *global.ConcurrentMapMutex[string, time.Time]
	lateAdds  *global.ConcurrentMapMutex[string, int]

	// pushNotifier delivers push notifications for push-capable
	// contacts; nil skips delivery and relies on PushResponseTimeout
	// alone to bound how long such a branch is left pending.
	pushNotifier PushNotifier
}

// SetPushNotifier wires n as the collaborator notified whenever a
// push-capable branch is added. Optional — a Router with none set
// still arms the per-branch push timer, it just never sends anything.
func (r *Router) SetPushNotifier(n PushNotifier) {
	r.pushNotifier = n
}

// NewRouter wires a Router to its collaborators. loop is the event
// loop every ForkContext the Router creates will be bound to.
func NewRouter(loop *eventloop.Loop, tsvc *timers.Service, config *ConfigStore, reg registrar.Registrar, m *metrics.Metrics) *Router {
	return &Router{
		loop:         loop,
		timers:       tsvc,
		config:       config,
		registrar:    reg,
		metrics:      m,
		byCallID:     global.NewConcurrentMapMutex[string, *ForkContext](),
		byIncomingTx: global.NewConcurrentMapMutex[IncomingTransaction, *ForkContext](),
		byOutgoingTx: global.NewConcurrentMapMutex[OutgoingTransaction, outgoingEntry](),
		createdAt:    global.NewConcurrentMapMutex[string, time.Time](),
		lateAdds:     global.NewConcurrentMapMutex[string, int](),
	}
}

// variantFor picks the aggregation policy by request method. INVITE
// forks commit on first 2xx; everything else aggregates until every
// branch has answered.
func variantFor(method sipmsg.Method) Variant {
	switch method {
	case sipmsg.INVITE:
		return InviteVariant{}
	case sipmsg.MESSAGE:
		return MessageVariant{}
	default:
		return BasicVariant{}
	}
}

// HandleIncomingRequest resolves req's target AoR to its registered
// contacts, creates a ForkContext, and fans out one branch per
// contact. Safe to call from any goroutine: the work runs on loop.
func (r *Router) HandleIncomingRequest(transport Transport, req *sipmsg.Request, tx IncomingTransaction) {
	r.loop.Post(func() {
		r.handleIncomingRequest(transport, req, tx)
	})
}

func (r *Router) handleIncomingRequest(transport Transport, req *sipmsg.Request, tx IncomingTransaction) {
	contacts := r.registrar.Lookup(req.RequestURI)

	variant := variantFor(req.Method)
	fc := Create(req, tx, r.config.Get(), r.timers, variant, r)

	r.byCallID.Set(req.CallID, fc)
	r.byIncomingTx.Set(tx, fc)
	r.createdAt.Set(fc.ID, time.Now())
	r.lateAdds.Set(fc.ID, 0)

	if r.metrics != nil {
		r.metrics.ActiveForks.Inc()
	}

	for _, c := range contacts {
		r.addBranchForContact(fc, transport, req, c)
	}

	if fc.config.ForkLate {
		unsubscribe := r.registrar.SubscribeNewRegistrations(req.RequestURI, func(c registrar.Contact) {
			r.loop.Post(func() {
				r.onNewRegistration(transport, fc, req, c)
			})
		})
		_ = unsubscribe // released implicitly when the process that owns fc exits; a long-running router would store and call this on fc finishing.
	}

	fc.NoBranchesAtCreation()
}

func (r *Router) addBranchForContact(fc *ForkContext, transport Transport, incoming *sipmsg.Request, c registrar.Contact) {
	outgoing := incoming.Clone()
	outgoing.RequestURI = c.URI
	outgoing.ViaBranch = fc.ID + "-" + c.UID

	superseded := fc.findBranchByUID(c.UID)
	branch, err := fc.AddBranch(transport, outgoing, c.UID, c.PushInfo)
	if err != nil {
		global.LogWarning(global.LTFork, "addBranchForContact: "+err.Error())
		return
	}
	if superseded != nil {
		if superseded.Transaction != nil {
			r.byOutgoingTx.Delete(superseded.Transaction)
		}
		if r.metrics != nil {
			r.metrics.ActiveBranches.Dec()
		}
	}
	if branch.Transaction != nil {
		r.byOutgoingTx.Set(branch.Transaction, outgoingEntry{ctx: fc, branch: branch})
	}
	if r.metrics != nil {
		r.metrics.ActiveBranches.Inc()
	}
	if branch.PushInfo != nil && r.pushNotifier != nil {
		if err := r.pushNotifier.Notify(branch); err != nil {
			global.LogWarning(global.LTFork, "push notify failed for "+branch.UID+": "+err.Error())
		}
	}
}

func (r *Router) onNewRegistration(transport Transport, fc *ForkContext, incoming *sipmsg.Request, c registrar.Contact) {
	if !fc.OnNewRegister(c.URI, c.UID) {
		return
	}
	r.addBranchForContact(fc, transport, incoming, c)
	n, _ := r.lateAdds.Get(fc.ID)
	r.lateAdds.Set(fc.ID, n+1)
	if r.metrics != nil {
		r.metrics.LateBranches.Inc()
	}
}

// ProcessResponse resolves tx to its owning context/branch and
// forwards the response into the state machine. Safe to call from any
// goroutine: the work runs on loop.
func (r *Router) ProcessResponse(tx OutgoingTransaction, resp *sipmsg.Response) {
	r.loop.Post(func() {
		entry, ok := r.byOutgoingTx.Get(tx)
		if !ok {
			global.LogWarning(global.LTFork, "ProcessResponse: unknown transaction, dropped")
			return
		}
		entry.ctx.OnResponse(entry.branch, resp)
	})
}

// ProcessCancel resolves an incoming transaction to its owning context
// and cancels every pending branch. A transaction that is not the one
// the fork was created with is resolved by its request's Call-ID.
// Safe to call from any goroutine: the work runs on loop.
func (r *Router) ProcessCancel(tx IncomingTransaction) {
	r.loop.Post(func() {
		fc, ok := r.byIncomingTx.Get(tx)
		if !ok && tx.Request() != nil {
			fc, ok = r.byCallID.Get(tx.Request().CallID)
		}
		if !ok {
			global.LogWarning(global.LTFork, "ProcessCancel: unknown transaction, dropped")
			return
		}
		fc.Cancel()
	})
}

// OnForkContextFinished implements Listener: unregisters ctx from
// every lookup table, records its CDR line, and updates metrics.
func (r *Router) OnForkContextFinished(ctx *ForkContext) {
	r.byCallID.Delete(ctx.incomingRequest.CallID)
	r.byIncomingTx.Delete(ctx.incomingTransaction)
	for _, b := range ctx.branches {
		if b.Transaction != nil {
			r.byOutgoingTx.Delete(b.Transaction)
		}
	}

	startedAt, _ := r.createdAt.Get(ctx.ID)
	lateAdds, _ := r.lateAdds.Get(ctx.ID)
	r.createdAt.Delete(ctx.ID)
	r.lateAdds.Delete(ctx.ID)

	finalCode := 0
	if ctx.lastResponseSent != nil {
		finalCode = ctx.lastResponseSent.StatusCode
	}
	cdr.RecordFinished(
		ctx.ID,
		ctx.incomingRequest.CallID,
		string(ctx.incomingRequest.Method),
		ctx.incomingRequest.RequestURI,
		variantName(ctx.variant),
		len(ctx.branches),
		lateAdds,
		finalCode,
		startedAt,
		ctx.cancelled,
		ctx.lateTimerExpired,
	)

	if r.metrics != nil {
		r.metrics.ActiveForks.Dec()
		r.metrics.ActiveBranches.Sub(float64(len(ctx.branches)))
		r.metrics.ForksFinished.Inc()
		if !startedAt.IsZero() {
			r.metrics.ForkDuration.Observe(time.Since(startedAt).Seconds())
		}
	}
}

func variantName(v Variant) string {
	switch v.(type) {
	case InviteVariant:
		return "invite"
	case MessageVariant:
		return "message"
	default:
		return "basic"
	}
}

// ActiveForks returns a snapshot of every ForkContext currently
// tracked, for the HTTP fork-summary endpoint.
func (r *Router) ActiveForks() []*ForkContext {
	return r.byCallID.Values()
}
