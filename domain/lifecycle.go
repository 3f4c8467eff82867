package domain

// LifecycleState is the manager's top-level mode. Exactly one holds at any
// instant.
type LifecycleState string

const (
	StateInitializing    LifecycleState = "initializing"
	StateAuthenticated   LifecycleState = "authenticated"
	StateUnauthenticated LifecycleState = "unauthenticated"
	StateError           LifecycleState = "error"
)

// Snapshot is the immutable view of the session tuple handed to consumers.
// Authenticated implies Principal and Profile are non-nil and the principal's
// email is verified. Notice carries non-error messages such as the
// verification-required hint; Err is only set in StateError.
type Snapshot struct {
	State     LifecycleState `json:"state"`
	Principal *Principal     `json:"principal,omitempty"`
	Profile   *Profile       `json:"profile,omitempty"`
	Err       string         `json:"error,omitempty"`
	Notice    string         `json:"notice,omitempty"`
}

// IsAuthenticated reports whether the snapshot represents a usable session.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.Principal != nil && s.Profile != nil
}
