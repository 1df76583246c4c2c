package session

// Reason records why a session was terminated.
type Reason uint8

const (
	ReasonNone Reason = iota
	// ReasonManual marks a user-initiated logout.
	ReasonManual
	// ReasonForced marks an administrative force logout.
	ReasonForced
	// ReasonExpired marks natural expiry.
	ReasonExpired
	// ReasonInactivity marks an idle timeout.
	ReasonInactivity
	// ReasonSecurity marks invalidation by a security action, including
	// concurrency-cap eviction.
	ReasonSecurity
)

func (r Reason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonForced:
		return "forced"
	case ReasonExpired:
		return "expired"
	case ReasonInactivity:
		return "inactivity"
	case ReasonSecurity:
		return "security"
	default:
		return ""
	}
}

// Session is one server-side authentication record. Token material is stored
// as SHA-256 hashes only; raw tokens never reach Redis.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	Role      string

	AccessHash  [32]byte
	RefreshHash [32]byte

	IP        string
	UserAgent string

	Active bool
	Reason Reason

	CreatedAt    int64
	LastActivity int64
	ExpiresAt    int64
	LogoutAt     int64
}
