package sessions

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jrsteele09/go-identity-bridge/tokens"
)

// Address locates a chat conversation and the user in it. It is what travels inside
// the OAuth state parameter, so it must carry enough to find the session again.
type Address struct {
	ChannelID      string `json:"channelId"`
	ServiceURL     string `json:"serviceUrl,omitempty"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserObjectID   string `json:"userObjectId,omitempty"` // Azure AD object id, when the channel provides one
	BotID          string `json:"botId,omitempty"`
}

// Validate reports whether the address has the fields needed to derive a session key.
func (a Address) Validate() error {
	if a.ChannelID == "" {
		return fmt.Errorf("address is missing channelId")
	}
	if a.UserID == "" {
		return fmt.Errorf("address is missing userId")
	}
	return nil
}

// Key returns the storage key of the session bound to this address. Session data is
// scoped to the user within a channel, so the same user shares one session across
// conversations.
func (a Address) Key() string {
	return url.PathEscape(a.ChannelID) + "/" + url.PathEscape(a.UserID)
}

// Session is a snapshot of the small sub-document this service keeps in a chat session:
// the remembered OAuth nonce and the token per provider.
type Session struct {
	Key        string
	Address    Address
	OAuthState map[string]string
	Tokens     map[string]*tokens.PendingToken
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func newSession(addr Address, now time.Time) *Session {
	return &Session{
		Key:        addr.Key(),
		Address:    addr,
		OAuthState: make(map[string]string),
		Tokens:     make(map[string]*tokens.PendingToken),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Nonce returns the nonce remembered for provider, or "".
func (s *Session) Nonce(provider string) string {
	if s == nil {
		return ""
	}
	return s.OAuthState[provider]
}

// Token returns a copy of the token held for provider, or nil.
func (s *Session) Token(provider string) *tokens.PendingToken {
	if s == nil {
		return nil
	}
	return s.Tokens[provider].Clone()
}

// UserObjectID is the directory identity of the session's user.
func (s *Session) UserObjectID() string {
	return s.Address.UserObjectID
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.OAuthState = make(map[string]string, len(s.OAuthState))
	for k, v := range s.OAuthState {
		c.OAuthState[k] = v
	}
	c.Tokens = make(map[string]*tokens.PendingToken, len(s.Tokens))
	for k, v := range s.Tokens {
		c.Tokens[k] = v.Clone()
	}
	return &c
}
