// Package guid generates the identifiers the fork engine hands out:
// Call-IDs and fork ids are whole UUIDv7 strings, which sort by
// creation time; Via branches and branch uids use only a UUIDv7's
// trailing bytes, which are random and do not.
package guid

import (
	"github.com/google/uuid"
)

const magicCookie = "z9hG4bK"

func newUUID() uuid.UUID {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return u
}

// NewCallID returns a fresh SIP Call-ID value.
func NewCallID() string {
	return newUUID().String()
}

// NewViaBranch returns a fresh Via branch parameter, magic-cookie
// prefixed per RFC 3261 so it is recognizable as an RFC3261 branch.
func NewViaBranch() string {
	u := newUUID().String()
	return magicCookie + u[24:]
}

// NewBranchUID returns a fresh stable identifier for a BranchInfo, used
// to deduplicate and supersede branches on re-registration when the
// registrar did not supply a device instance-id of its own.
func NewBranchUID() string {
	u := newUUID().String()
	return u[24:]
}

// NewForkID returns a fresh identifier for a ForkContext, used for CDR
// correlation and the HTTP fork-summary endpoint.
func NewForkID() string {
	return newUUID().String()
}
