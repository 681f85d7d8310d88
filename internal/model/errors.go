package model

import "errors"

var (
	// ErrUnknownSite is returned when an operation names a site that is not
	// registered. Transport layers map it to 404.
	ErrUnknownSite = errors.New("unknown site")

	// ErrUnauthorized is returned when a credential does not match the
	// site it claims. Transport layers map it to 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable is returned when the event store cannot accept an
	// append. The mutation itself stays committed upstream; only the
	// notification is lost, and the poll fallback covers the gap.
	ErrStoreUnavailable = errors.New("store unavailable")
)
