package providers

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/go-identity-bridge/internal/config"
	apperrors "github.com/jrsteele09/go-identity-bridge/internal/errors"
)

// Registry holds the provider clients configured for this deployment.
type Registry struct {
	mu      sync.RWMutex
	clients map[ID]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[ID]Client)}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for its provider id.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID()] = c
}

// Get returns the client for a provider name. Unknown or unconfigured providers
// return ErrUnknownProvider.
func (r *Registry) Get(name string) (Client, error) {
	id, err := ParseID(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", apperrors.ErrUnknownProvider, name)
	}
	return c, nil
}

// All returns the registered clients in KnownIDs order.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, id := range KnownIDs {
		if c, ok := r.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// DisplayName returns a printable name for any provider string, registered or not.
func DisplayName(name string) string {
	if id, err := ParseID(name); err == nil {
		return id.DisplayName()
	}
	return name
}

// FromConfig builds a registry with every provider that has credentials configured.
func FromConfig(cfg config.ProviderConfig, opts ...Option) *Registry {
	r := NewRegistry()
	for _, id := range KnownIDs {
		pc, ok := cfg.GetProviderCredentials(string(id))
		if !ok {
			continue
		}
		creds := Credentials{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Tenant:       pc.Tenant,
		}
		switch id {
		case LinkedIn:
			r.Register(NewLinkedIn(creds, opts...))
		case AzureADv1:
			r.Register(NewAzureAD(creds, opts...))
		case Google:
			r.Register(NewGoogle(creds, opts...))
		}
	}
	return r
}
