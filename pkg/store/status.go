package store

// Status is the domain outcome of a store operation. These are business
// outcomes (user missing, group full, ...) as opposed to infrastructure
// errors (disk failure), which travel separately as wrapped errors.
//
// Protocol handlers translate Status values to wire status tokens
// (OK, NOK, DUP, E_GRP, ...), so each handler is a single mapping from
// variant to reply instead of a nest of re-checks.
type Status int

const (
	// Valid means the operation applied (or the checked condition holds).
	Valid Status = iota

	// Invalid means the target does not exist or the supplied value does
	// not match the stored one (wrong password).
	Invalid

	// NotLoggedIn means the user exists but holds no login marker.
	NotLoggedIn

	// NotSubscribed means the user holds no subscription marker in the group.
	NotSubscribed

	// NotFound means the named group does not exist.
	NotFound

	// Duplicate means the user is already registered.
	Duplicate

	// Full means all 99 group identifiers are allocated.
	Full

	// NameMismatch means the supplied GName differs from the stored one.
	NameMismatch
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case NotLoggedIn:
		return "not-logged-in"
	case NotSubscribed:
		return "not-subscribed"
	case NotFound:
		return "not-found"
	case Duplicate:
		return "duplicate"
	case Full:
		return "full"
	case NameMismatch:
		return "name-mismatch"
	default:
		return "unknown"
	}
}
