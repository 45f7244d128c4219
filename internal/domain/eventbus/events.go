package eventbus

import "time"

// Auth event topics.
const (
	EventAuthRegistered     = "auth:registered"
	EventAuthLogin          = "auth:login"
	EventAuthLoginFailed    = "auth:login_failed"
	EventAuthRefresh        = "auth:refresh"
	EventAuthLogout         = "auth:logout"
	EventAuthSessionRevoked = "auth:session_revoked"
)

// AuthTopics lists every topic the recorder persists.
var AuthTopics = []string{
	EventAuthRegistered,
	EventAuthLogin,
	EventAuthLoginFailed,
	EventAuthRefresh,
	EventAuthLogout,
	EventAuthSessionRevoked,
}

// AuthEventData is the payload of every auth event. It never carries tokens.
type AuthEventData struct {
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
