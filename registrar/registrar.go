// Package registrar resolves an address-of-record to its currently
// registered contacts, and notifies subscribers of new registrations
// so the Router can late-fork. Adapted from phone.IPPhoneRepo, which
// played the same role for a single registered extension per AoR;
// this generalizes it to many contacts per AoR, as a real SIP
// registrar allows.
package registrar

import (
	"sync"

	"ForkGo/global"
)

// Contact is a single registered binding for an address-of-record.
type Contact struct {
	URI string
	// UID is the stable per-device identifier (+sip.instance or
	// equivalent) BranchInfo.uid is matched against for dedup/supersede.
	UID string
	// PushInfo carries an opaque push-notification token for contacts
	// that register behind a push-capable client, consumed by the
	// PushNotifier collaborator, nil if the contact is directly
	// reachable.
	PushInfo *string
}

// NewRegistrationCallback is invoked once per newly-registered contact
// for an AoR, until the subscribing ForkContext unsubscribes.
type NewRegistrationCallback func(c Contact)

// Registrar resolves an AoR to its contacts and notifies subscribers
// of new registrations.
type Registrar interface {
	Lookup(aor string) []Contact
	SubscribeNewRegistrations(aor string, cb NewRegistrationCallback) (unsubscribe func())
}

type subscription struct {
	id int
	cb NewRegistrationCallback
}

// InMemory is a process-local Registrar, the default collaborator
// wired into the main package. A production deployment would instead talk
// to an external registrar, e.g. a Redis-backed one, behind the same
// interface.
type InMemory struct {
	mu            sync.RWMutex
	contacts      map[string][]Contact // aor -> contacts
	subscriptions map[string][]subscription
	nextSubID     int
}

func NewInMemory() *InMemory {
	return &InMemory{
		contacts:      make(map[string][]Contact),
		subscriptions: make(map[string][]subscription),
	}
}

// Lookup returns the AoR's currently registered contacts.
func (r *InMemory) Lookup(aor string) []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contact, len(r.contacts[aor]))
	copy(out, r.contacts[aor])
	return out
}

// SubscribeNewRegistrations registers cb to fire once per future new
// contact for aor, returning an unsubscribe func.
func (r *InMemory) SubscribeNewRegistrations(aor string, cb NewRegistrationCallback) func() {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscriptions[aor] = append(r.subscriptions[aor], subscription{id: id, cb: cb})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subscriptions[aor]
		for i, s := range subs {
			if s.id == id {
				r.subscriptions[aor] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Register adds or refreshes a contact binding for aor. expires<=0
// removes the binding (the device unregistered). New contacts (not
// already bound for this aor under the same URI) trigger every
// subscriber's callback — this is what lets a ForkContext with
// forkLate=true observe the registration and add a late branch.
func (r *InMemory) Register(aor string, c Contact, expires int) {
	r.mu.Lock()
	existing := r.contacts[aor]
	idx := -1
	for i, ec := range existing {
		if ec.URI == c.URI {
			idx = i
			break
		}
	}

	if expires <= 0 {
		if idx >= 0 {
			r.contacts[aor] = global.RemoveAt(existing, idx)
		}
		r.mu.Unlock()
		global.LogInfo(global.LTRegistrar, "contact unregistered: "+c.URI)
		return
	}

	isNew := idx < 0
	if isNew {
		r.contacts[aor] = append(existing, c)
	} else {
		existing[idx] = c
	}
	subs := append([]subscription(nil), r.subscriptions[aor]...)
	r.mu.Unlock()

	global.LogInfo(global.LTRegistrar, "contact registered: "+c.URI)

	if !isNew {
		return
	}
	for _, s := range subs {
		s.cb(c)
	}
}
