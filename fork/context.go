// Package fork implements the forking engine: a state machine that
// fans one incoming request out to N branches, aggregates their
// responses per SIP semantics, and forwards exactly one final response
// upstream.
package fork

import (
	"context"
	"time"

	"github.com/qmuntal/stateless"

	"ForkGo/global"
	"ForkGo/guid"
	"ForkGo/sipmsg"
	"ForkGo/timers"
)

// State is one of the three states a ForkContext moves through.
type State string

const (
	StateActive    State = "Active"
	StateFinishing State = "Finishing"
	StateFinished  State = "Finished"
)

type trigger string

const (
	triggerSetFinished trigger = "SetFinished"
	triggerTick        trigger = "Tick"
)

// Listener receives the finished upcall, fired exactly once, after
// onFinished runs.
type Listener interface {
	OnForkContextFinished(ctx *ForkContext)
}

// ForkContext is the fork state machine proper. Every method on it
// must only ever be called from the owning eventloop.Loop
// goroutine — the Router is responsible for posting external events
// (registrar notifications, transport responses) onto that loop before
// calling in.
type ForkContext struct {
	ID string

	incomingRequest     *sipmsg.Request
	incomingTransaction IncomingTransaction
	lastResponseSent    *sipmsg.Response

	branches []*BranchInfo

	config *Config
	timers *timers.Service

	lateTimer        *timers.Handle
	finishTimer      *timers.Handle
	lateTimerExpired bool

	listener Listener
	variant  Variant

	sm *stateless.StateMachine

	// self keeps the context alive across pending timer callbacks;
	// cleared in onFinished to break the cycle.
	self *ForkContext

	// cancelled marks cancel() was invoked; a later 2xx is still
	// forwarded but nothing else changes the outcome.
	cancelled bool

	// provisionalSent marks that a 1xx has already been relayed
	// upstream, so a second branch's ringing doesn't ring twice.
	provisionalSent bool

	createdAt time.Time
}

// Create starts a new ForkContext: arms lateTimer with
// deliveryTimeout if forkLate is true, and installs the
// self-reference that keeps it alive for pending timers.
func Create(incomingRequest *sipmsg.Request, incomingTransaction IncomingTransaction, config *Config, tsvc *timers.Service, variant Variant, listener Listener) *ForkContext {
	fc := &ForkContext{
		ID:                  guid.NewForkID(),
		incomingRequest:     incomingRequest,
		incomingTransaction: incomingTransaction,
		config:              config,
		timers:              tsvc,
		listener:            listener,
		variant:             variant,
		createdAt:           time.Now(),
	}
	fc.self = fc
	fc.sm = newStateMachine(fc)

	if config.ForkLate {
		fc.lateTimer = tsvc.After(config.DeliveryTimeout, fc.onLateTimerFired)
	}

	return fc
}

func newStateMachine(fc *ForkContext) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateActive)

	sm.Configure(StateActive).
		Permit(triggerSetFinished, StateFinishing)

	sm.Configure(StateFinishing).
		OnEntry(func(_ context.Context, _ ...interface{}) error {
			fc.finishTimer = fc.timers.After(0, fc.onFinishTimerFired)
			return nil
		}).
		Permit(triggerTick, StateFinished)

	sm.Configure(StateFinished).
		OnEntry(func(_ context.Context, _ ...interface{}) error {
			fc.onFinished()
			return nil
		})

	return sm
}

// State returns the context's current state.
func (fc *ForkContext) State() State {
	s, err := fc.sm.State(context.Background())
	if err != nil {
		return StateActive
	}
	return s.(State)
}

// IsFinished reports whether the context has left Active.
func (fc *ForkContext) IsFinished() bool {
	return fc.State() != StateActive
}

// Branches returns the context's branches in insertion order. Callers
// must not mutate the returned slice.
func (fc *ForkContext) Branches() []*BranchInfo {
	return fc.branches
}

// IncomingRequest returns the request that triggered this fork.
func (fc *ForkContext) IncomingRequest() *sipmsg.Request {
	return fc.incomingRequest
}

// LastResponseSent returns the most recently forwarded response, or
// nil if none has been forwarded yet.
func (fc *ForkContext) LastResponseSent() *sipmsg.Response {
	return fc.lastResponseSent
}

// setFinished transitions Active -> Finishing. Idempotent: calling it
// again once Finishing/Finished is a no-op.
func (fc *ForkContext) setFinished() {
	if fc.State() != StateActive {
		return
	}
	if err := fc.sm.Fire(triggerSetFinished); err != nil {
		global.LogWarning(global.LTFork, "setFinished: "+err.Error())
	}
}

func (fc *ForkContext) onFinishTimerFired() {
	if err := fc.sm.Fire(triggerTick); err != nil {
		global.LogWarning(global.LTFork, "finish tick: "+err.Error())
	}
}

// onFinished runs once, on the Finishing -> Finished transition: stops
// any still-armed timers, fires the listener upcall, and breaks the
// self-reference cycle so the context can be collected.
func (fc *ForkContext) onFinished() {
	fc.lateTimer.Stop()
	fc.finishTimer.Stop()
	for _, b := range fc.branches {
		if b.pushTimerStop != nil {
			b.pushTimerStop()
		}
	}
	if fc.listener != nil {
		fc.listener.OnForkContextFinished(fc)
	}
	fc.self = nil
}
