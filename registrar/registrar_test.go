package registrar_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ForkGo/registrar"
)

func TestLookupReturnsIndependentCopies(t *testing.T) {
	t.Parallel()

	reg := registrar.NewInMemory()
	reg.Register("sip:alice@example.com", registrar.Contact{URI: "sip:alice@10.0.0.1", UID: "uid-1"}, 3600)

	first := reg.Lookup("sip:alice@example.com")
	require.Len(t, first, 1)

	first[0].URI = "mutated"

	second := reg.Lookup("sip:alice@example.com")
	require.Equal(t, "sip:alice@10.0.0.1", second[0].URI, "mutating a returned slice must not affect the registrar's state")
}

func TestRegisterWithZeroExpiresRemovesContact(t *testing.T) {
	t.Parallel()

	reg := registrar.NewInMemory()
	reg.Register("sip:bob@example.com", registrar.Contact{URI: "sip:bob@10.0.0.2", UID: "uid-2"}, 3600)
	require.Len(t, reg.Lookup("sip:bob@example.com"), 1)

	reg.Register("sip:bob@example.com", registrar.Contact{URI: "sip:bob@10.0.0.2", UID: "uid-2"}, 0)
	require.Empty(t, reg.Lookup("sip:bob@example.com"))
}

func TestSubscribersNotifiedOnlyOnGenuinelyNewContacts(t *testing.T) {
	t.Parallel()

	reg := registrar.NewInMemory()
	var notified []registrar.Contact
	unsubscribe := reg.SubscribeNewRegistrations("sip:carol@example.com", func(c registrar.Contact) {
		notified = append(notified, c)
	})
	defer unsubscribe()

	reg.Register("sip:carol@example.com", registrar.Contact{URI: "sip:carol@10.0.0.3", UID: "uid-3"}, 3600)
	require.Len(t, notified, 1)

	// Re-registering the same contact (a refresh) must not fire a second
	// notification.
	reg.Register("sip:carol@example.com", registrar.Contact{URI: "sip:carol@10.0.0.3", UID: "uid-3"}, 3600)
	require.Len(t, notified, 1)

	reg.Register("sip:carol@example.com", registrar.Contact{URI: "sip:carol@10.0.0.4", UID: "uid-4"}, 3600)
	require.Len(t, notified, 2)
}

func TestUnsubscribeStopsFurtherNotifications(t *testing.T) {
	t.Parallel()

	reg := registrar.NewInMemory()
	var count int
	unsubscribe := reg.SubscribeNewRegistrations("sip:dave@example.com", func(registrar.Contact) {
		count++
	})

	reg.Register("sip:dave@example.com", registrar.Contact{URI: "sip:dave@10.0.0.5", UID: "uid-5"}, 3600)
	require.Equal(t, 1, count)

	unsubscribe()

	reg.Register("sip:dave@example.com", registrar.Contact{URI: "sip:dave@10.0.0.6", UID: "uid-6"}, 3600)
	require.Equal(t, 1, count)
}
