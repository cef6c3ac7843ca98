package tokens

import "time"

// Status is the lifecycle state of a provider token held for a chat session.
type Status string

const (
	// StatusPending tokens were obtained in the browser but the chat user has not yet
	// proven they completed that flow. They must never be used.
	StatusPending Status = "pending"
	// StatusActive tokens have been confirmed with their verification code.
	StatusActive Status = "active"
)

// PendingToken is a provider access token bound to one chat session and provider.
type PendingToken struct {
	AccessToken      string    `json:"accessToken"`
	ExpiresAt        time.Time `json:"expirationTime,omitempty"` // informational only
	VerificationCode string    `json:"verificationCode,omitempty"`
	Status           Status    `json:"status"`
	IssuedAt         time.Time `json:"issuedAt"`
	ActivatedAt      time.Time `json:"activatedAt,omitempty"`
}

func (t *PendingToken) IsActive() bool {
	return t != nil && t.Status == StatusActive
}

func (t *PendingToken) IsPending() bool {
	return t != nil && t.Status == StatusPending
}

// Clone returns a copy so callers never share a stored value.
func (t *PendingToken) Clone() *PendingToken {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
